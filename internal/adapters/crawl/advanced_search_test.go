package crawl

import (
	"testing"

	"github.com/livingpark/ppmi-downloader/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const advancedSearchPage = `<html><body>
<form id="advSearchForm">
  <table>
    <tr><td><input type="checkbox" id="RESEARCH_GROUP_CHECKBOX" /></td><td><label for="RESEARCH_GROUP_CHECKBOX">Research Group</label></td></tr>
    <tr><td><input type="checkbox" id="imgProtocol_checkBox1.Acquisition_Type" /><span>Acquisition
        Type</span></td></tr>
    <tr><td><input type="checkbox" id="imgProtocol_checkBox1.Weighting" /><span>Weighting</span></td></tr>
    <tr><td><input type="checkbox" id="imgProtocol_checkBox1.Slice_Thickness" /><span> </span></td></tr>
    <tr><td><input type="checkbox" /><span>No id</span></td></tr>
    <tr><td><input type="text" id="subjectIdText" /><span>Subject</span></td></tr>
  </table>
</form>
</body></html>`

func TestAdvancedSearchParserParse(t *testing.T) {
	criteria, err := AdvancedSearchParser{}.Parse(advancedSearchPage)
	require.NoError(t, err)

	assert.Equal(t, []domain.SearchCriterion{
		{Name: "Research Group", CheckboxID: "RESEARCH_GROUP_CHECKBOX"},
		{Name: "Acquisition Type", CheckboxID: "imgProtocol_checkBox1.Acquisition_Type"},
		{Name: "Weighting", CheckboxID: "imgProtocol_checkBox1.Weighting"},
	}, criteria)
}

func TestAdvancedSearchParserLaterDuplicateWins(t *testing.T) {
	criteria, err := AdvancedSearchParser{}.Parse(`<input type="checkbox" id="a"><b>Visit</b>
<input type="checkbox" id="b"><b>Visit</b>`)
	require.NoError(t, err)
	assert.Equal(t, []domain.SearchCriterion{{Name: "Visit", CheckboxID: "b"}}, criteria)
}
