package crawl

import (
	"testing"

	"github.com/livingpark/ppmi-downloader/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const studyDataPage = `<html><body>
<div id="tree">
  <input type="checkbox" id="ygtvcheck71" /><span>ALL</span>
  <div><input type="checkbox" id="2544" /><a href="#">Demographics</a></div>
  <div><input type="checkbox" id="2834" /><a href="#">Age at visit</a></div>
  <div><input type="checkbox" id="2655" /><label for="2655">Magnetic Resonance Imaging (MRI)</label></div>
  <div><input type="checkbox" id="2472" /><a href="#">REM Sleep Behavior Disorder Questionnaire</a></div>
  <div><input type="checkbox" id="1999" /><a href="#">Archived Demographics</a></div>
  <div><input type="checkbox" id="3001" /><a href="#"></a></div>
  <div><input type="checkbox" /><a href="#">No id</a></div>
</div>
</body></html>`

func TestStudyDataParserParse(t *testing.T) {
	entries, err := StudyDataParser{}.Parse(studyDataPage)
	require.NoError(t, err)

	assert.Equal(t, []domain.CatalogEntry{
		{Name: "Demographics.csv", CheckboxID: "2544"},
		{Name: "Age_at_visit.csv", CheckboxID: "2834"},
		{Name: "Magnetic_Resonance_Imaging__MRI_.csv", CheckboxID: "2655"},
		{Name: "REM_Sleep_Behavior_Disorder_Questionnaire.csv", CheckboxID: "2472"},
	}, entries)
}

func TestStudyDataParserLaterDuplicateWins(t *testing.T) {
	entries, err := StudyDataParser{}.Parse(`<input type="checkbox" id="1"><b>Demographics</b>
<input type="checkbox" id="2"><b>Demographics</b>`)
	require.NoError(t, err)
	assert.Equal(t, []domain.CatalogEntry{{Name: "Demographics.csv", CheckboxID: "2"}}, entries)
}

func TestStudyDataParserEmptyPage(t *testing.T) {
	entries, err := StudyDataParser{}.Parse(`<html></html>`)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCleanName(t *testing.T) {
	tests := map[string]string{
		"Demographics":                      "Demographics.csv",
		"Age at visit":                      "Age_at_visit.csv",
		"Magnetic Resonance Imaging (MRI)":  "Magnetic_Resonance_Imaging__MRI_.csv",
		"MDS-UPDRS Part III":                "MDS-UPDRS_Part_III.csv",
		"  Socio-Economics/Education & Job": "Socio-Economics_Education___Job.csv",
	}
	for label, want := range tests {
		assert.Equal(t, want, CleanName(label), label)
	}
}
