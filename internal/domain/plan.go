package domain

import (
	"fmt"
	"strings"
)

type LocatorKind string

const (
	ByID       LocatorKind = "id"
	ByName     LocatorKind = "name"
	ByClass    LocatorKind = "class"
	ByTag      LocatorKind = "tag"
	ByText     LocatorKind = "text"
	ByLinkText LocatorKind = "link_text"
	ByXPath    LocatorKind = "xpath"
)

// HandlePlaceholder is substituted with the export job handle in status-page
// locators.
const HandlePlaceholder = "{handle}"

// Locator identifies a page element. Class locators accept dotted compound
// class names ("sub-menu.download.active").
type Locator struct {
	By    LocatorKind `mapstructure:"by" toml:"by"`
	Value string      `mapstructure:"value" toml:"value"`
}

func ID(value string) Locator       { return Locator{By: ByID, Value: value} }
func Name(value string) Locator     { return Locator{By: ByName, Value: value} }
func Class(value string) Locator    { return Locator{By: ByClass, Value: value} }
func Tag(value string) Locator      { return Locator{By: ByTag, Value: value} }
func Text(value string) Locator     { return Locator{By: ByText, Value: value} }
func LinkText(value string) Locator { return Locator{By: ByLinkText, Value: value} }
func XPath(value string) Locator    { return Locator{By: ByXPath, Value: value} }

func (l Locator) IsZero() bool {
	return l.Value == ""
}

func (l Locator) String() string {
	return fmt.Sprintf("%s=%s", l.By, l.Value)
}

func (l Locator) WithHandle(handle string) Locator {
	l.Value = strings.ReplaceAll(l.Value, HandlePlaceholder, handle)
	return l
}

type ConditionKind string

const (
	ConditionElementPresent ConditionKind = "element_present"
	ConditionURLPrefix      ConditionKind = "url_prefix"
	ConditionURLQuery       ConditionKind = "url_query"
)

// Condition is a page postcondition checked after a click.
type Condition struct {
	Kind    ConditionKind
	Element Locator
	Prefix  string
	Query   map[string]string
}

func ElementPresent(l Locator) *Condition {
	return &Condition{Kind: ConditionElementPresent, Element: l}
}

func URLHasPrefix(prefix string) *Condition {
	return &Condition{Kind: ConditionURLPrefix, Prefix: prefix}
}

func URLHasQuery(query map[string]string) *Condition {
	return &Condition{Kind: ConditionURLQuery, Query: query}
}

type ActionOp string

const (
	OpNavigate ActionOp = "navigate"
	OpClick    ActionOp = "click"
	OpCheck    ActionOp = "check"
	OpFill     ActionOp = "fill"
	OpTrigger  ActionOp = "trigger_export"
)

type Action struct {
	Op          ActionOp
	Target      Locator
	URL         string
	Value       string
	Until       *Condition
	Optional    bool
	Description string
}

func (a Action) String() string {
	if a.Description != "" {
		return fmt.Sprintf("%s %q", a.Op, a.Description)
	}
	if a.Op == OpNavigate {
		return fmt.Sprintf("%s %s", a.Op, a.URL)
	}
	return fmt.Sprintf("%s %s", a.Op, a.Target)
}

type ArtifactSpec struct {
	Extensions []string
	MultiPart  bool
}

// Accepts reports whether name carries one of the expected extensions.
func (s ArtifactSpec) Accepts(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range s.Extensions {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return true
		}
	}
	return false
}

type ActionPlan struct {
	Kind     RequestKind
	Label    string
	Steps    []Action
	Artifact ArtifactSpec
	// Subjects and Tables echo the request so results can be checked for coverage.
	Subjects []int
	Tables   []CatalogEntry
}
