// Package portal describes the LONI IDA pages the downloader drives: URLs
// and element locators. It is configuration, not protocol; every field can be
// overridden from the [portal] table of the config file when the site drifts.
package portal

import "github.com/livingpark/ppmi-downloader/internal/domain"

type Site struct {
	MainURL       string `mapstructure:"main_url"`
	LoginURL      string `mapstructure:"login_url"`
	HomeURL       string `mapstructure:"home_url"`
	StudyDataURL  string `mapstructure:"study_data_url"`
	ExportsURL    string `mapstructure:"exports_url"`
	Login         LoginPage
	Menu          Menu
	StudyData     StudyDataPage     `mapstructure:"study_data"`
	ImageSearch   ImageSearchPage   `mapstructure:"image_search"`
	ImageExport   ImageExportPage   `mapstructure:"image_export"`
	Exports       ExportsPage
	T1InfoColumns []domain.Locator `mapstructure:"t1_info_columns"`
}

type LoginPage struct {
	CookieAccept domain.Locator `mapstructure:"cookie_accept"`
	Email        domain.Locator
	Password     domain.Locator
	Submit       domain.Locator
	// Invalid appears when the portal rejects the credentials.
	Invalid domain.Locator
	// LoggedIn only exists on pages served to an authenticated user.
	LoggedIn domain.Locator `mapstructure:"logged_in"`
}

type Menu struct {
	Download       domain.Locator
	DownloadActive domain.Locator `mapstructure:"download_active"`
	Search         domain.Locator
	SearchActive   domain.Locator `mapstructure:"search_active"`
	StudyData      domain.Locator `mapstructure:"study_data"`
	AdvancedSearch domain.Locator `mapstructure:"advanced_search"`
}

type StudyDataPage struct {
	AllTables domain.Locator `mapstructure:"all_tables"`
	Download  domain.Locator
}

type ImageSearchPage struct {
	SubjectIDs      domain.Locator `mapstructure:"subject_ids"`
	Search          domain.Locator
	SelectAll       domain.Locator `mapstructure:"select_all"`
	AddToCollection domain.Locator `mapstructure:"add_to_collection"`
	CollectionName  domain.Locator `mapstructure:"collection_name"`
	ConfirmAdd      domain.Locator `mapstructure:"confirm_add"`
	ThreeDProtocol  domain.Locator `mapstructure:"three_d_protocol"`
	CSVDownload     domain.Locator `mapstructure:"csv_download"`
}

type ImageExportPage struct {
	Export      domain.Locator
	SelectAll   domain.Locator `mapstructure:"select_all"`
	DICOMButton domain.Locator `mapstructure:"dicom_button"`
	NIfTIButton domain.Locator `mapstructure:"nifti_button"`
	Download    domain.Locator
}

// ExportsPage lists prepared exports. Locators may contain domain.HandlePlaceholder.
type ExportsPage struct {
	// Handle is the status area that names the export just triggered.
	Handle        domain.Locator
	Status        domain.Locator
	DownloadLinks domain.Locator `mapstructure:"download_links"`
	PendingWords  []string       `mapstructure:"pending_words"`
	ReadyWords    []string       `mapstructure:"ready_words"`
	FailedWords   []string       `mapstructure:"failed_words"`
}

const advancedSearchSubPage = "NEW_ADV_QUERY"

func Default() Site {
	return Site{
		MainURL:      "https://ida.loni.usc.edu/login.jsp?project=PPMI",
		LoginURL:     "https://ida.loni.usc.edu/explore/jsp/common/login.jsp?project=PPMI",
		HomeURL:      "https://ida.loni.usc.edu/home/projectPage.jsp?project=PPMI",
		StudyDataURL: "https://ida.loni.usc.edu/pages/access/studyData.jsp",
		ExportsURL:   "https://ida.loni.usc.edu/pages/access/downloads.jsp?project=PPMI",
		Login: LoginPage{
			CookieAccept: domain.Class("ida-cookie-policy-accept"),
			Email:        domain.Name("userEmail"),
			Password:     domain.Name("userPassword"),
			Submit:       domain.Tag("button"),
			Invalid:      domain.Class("register-input-error-msg.invalid-login"),
			LoggedIn:     domain.Class("ida-menu-option.sub-menu.download"),
		},
		Menu: Menu{
			Download:       domain.Class("ida-menu-option.sub-menu.download"),
			DownloadActive: domain.Class("ida-menu-option.sub-menu.download.active"),
			Search:         domain.Class("ida-menu-option.sub-menu.search"),
			SearchActive:   domain.Class("ida-menu-option.sub-menu.search.active"),
			StudyData:      domain.Text("Study Data"),
			AdvancedSearch: domain.Text("Advanced Image Search (beta)"),
		},
		StudyData: StudyDataPage{
			AllTables: domain.ID("ygtvlabelel71"),
			Download:  domain.ID("downloadBtn"),
		},
		ImageSearch: ImageSearchPage{
			SubjectIDs:      domain.ID("subjectIdText"),
			Search:          domain.ID("advSearchQuery"),
			SelectAll:       domain.ID("advResultSelectAll"),
			AddToCollection: domain.ID("advResultAddCollectId"),
			CollectionName:  domain.ID("nameText"),
			ConfirmAdd:      domain.XPath(`//button[normalize-space(text())="OK"]`),
			ThreeDProtocol:  domain.ID("imgProtocol_checkBox1.Acquisition_Type.3D"),
			CSVDownload:     domain.XPath(`//*[@type="button" and @value="CSV Download"]`),
		},
		ImageExport: ImageExportPage{
			Export:      domain.ID("export"),
			SelectAll:   domain.ID("selectAllCheckBox"),
			DICOMButton: domain.ID("archivedButton"),
			NIfTIButton: domain.ID("niftiButton"),
			Download:    domain.ID("simple-download-button"),
		},
		Exports: ExportsPage{
			Handle:        domain.ID("exportFileName"),
			Status:        domain.XPath(`//tr[td[contains(., "{handle}")]]/td[contains(@class, "status")]`),
			DownloadLinks: domain.XPath(`//a[contains(@href, "{handle}")]`),
			PendingWords:  []string{"processing", "queued", "pending", "preparing"},
			ReadyWords:    []string{"available", "complete", "completed", "ready"},
			FailedWords:   []string{"error", "failed", "expired"},
		},
		T1InfoColumns: []domain.Locator{
			domain.ID("RESET_VISIT.0"),
			domain.ID("RESET_PROTOCOL_STRING.1_Weighting"),
			domain.ID("RESET_PROTOCOL_STRING.1_Manufacturer"),
			domain.ID("RESET_PROTOCOL_STRING.1_Mfg_Model"),
			domain.ID("RESET_STUDY.0"),
			domain.ID("RESET_PROTOCOL_NUMERIC.imgProtocol_1_Field_Strength"),
			domain.ID("RESET_PROTOCOL_STRING.1_Acquisition_Plane"),
		},
	}
}

// AdvancedSearchQuery is the URL query the advanced image search page carries.
func AdvancedSearchQuery() map[string]string {
	return map[string]string{"page": "SEARCH", "subPage": advancedSearchSubPage}
}
