package cdp

import (
	"fmt"
	"strings"

	"github.com/chromedp/chromedp"
	"github.com/livingpark/ppmi-downloader/internal/domain"
)

// query is a locator translated into a chromedp selector.
type query struct {
	selector string
	by       chromedp.QueryOption
}

func toQuery(l domain.Locator) (query, error) {
	if l.IsZero() {
		return query{}, fmt.Errorf("empty %s locator", l.By)
	}
	switch l.By {
	case domain.ByID:
		return css(fmt.Sprintf(`[id=%s]`, cssString(l.Value))), nil
	case domain.ByName:
		return css(fmt.Sprintf(`[name=%s]`, cssString(l.Value))), nil
	case domain.ByClass:
		classes := strings.FieldsFunc(l.Value, func(r rune) bool { return r == '.' || r == ' ' })
		return css("." + strings.Join(classes, ".")), nil
	case domain.ByTag:
		return css(l.Value), nil
	case domain.ByText:
		return xpath(fmt.Sprintf(`//*[text()[normalize-space(.)=%s]]`, xpathString(l.Value))), nil
	case domain.ByLinkText:
		return xpath(fmt.Sprintf(`//a[normalize-space(.)=%s]`, xpathString(l.Value))), nil
	case domain.ByXPath:
		return xpath(l.Value), nil
	default:
		return query{}, fmt.Errorf("unsupported locator strategy %q", l.By)
	}
}

func css(selector string) query {
	return query{selector: selector, by: chromedp.ByQueryAll}
}

func xpath(expr string) query {
	return query{selector: expr, by: chromedp.BySearch}
}

func cssString(value string) string {
	return `"` + strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(value) + `"`
}

// xpathString quotes value as an XPath 1.0 literal, falling back to concat()
// when it holds both quote kinds.
func xpathString(value string) string {
	if !strings.Contains(value, `"`) {
		return `"` + value + `"`
	}
	if !strings.Contains(value, `'`) {
		return `'` + value + `'`
	}
	parts := strings.Split(value, `"`)
	quoted := make([]string, 0, 2*len(parts))
	for i, part := range parts {
		if i > 0 {
			quoted = append(quoted, `'"'`)
		}
		if part != "" {
			quoted = append(quoted, `"`+part+`"`)
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}
