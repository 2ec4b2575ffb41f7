package domain

import (
	"fmt"
	"sort"
	"strings"
)

type RequestKind string

const (
	RequestKindMetadata RequestKind = "metadata"
	RequestKindT1Info   RequestKind = "t1_info"
	RequestKindImaging  RequestKind = "imaging"
)

type ImageFormat string

const (
	FormatDICOM ImageFormat = "dicom"
	FormatNIfTI ImageFormat = "nifti"
)

// ParseImageFormat accepts the portal's "archived" alias for DICOM.
// An empty value selects DICOM.
func ParseImageFormat(raw string) (ImageFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "dicom", "archived":
		return FormatDICOM, nil
	case "nifti", "nii":
		return FormatNIfTI, nil
	default:
		return "", fmt.Errorf("%w: unsupported image format %q (want dicom or nifti)", ErrUnknownRequest, raw)
	}
}

// Request is a validated, immutable description of what to fetch.
// The set of implementations is closed to this package.
type Request interface {
	Kind() RequestKind
	sealed()
}

type MetadataRequest struct {
	tables []string
}

func NewMetadataRequest(tables ...string) (MetadataRequest, error) {
	cleaned := make([]string, 0, len(tables))
	seen := make(map[string]struct{}, len(tables))
	for _, table := range tables {
		trimmed := strings.TrimSpace(table)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		cleaned = append(cleaned, trimmed)
	}
	if len(cleaned) == 0 {
		return MetadataRequest{}, fmt.Errorf("%w: at least one metadata table name is required", ErrUnknownRequest)
	}

	return MetadataRequest{tables: cleaned}, nil
}

func (MetadataRequest) Kind() RequestKind { return RequestKindMetadata }
func (MetadataRequest) sealed()           {}

func (r MetadataRequest) Tables() []string {
	return append([]string(nil), r.tables...)
}

type T1InfoRequest struct{}

func NewT1InfoRequest() T1InfoRequest { return T1InfoRequest{} }

func (T1InfoRequest) Kind() RequestKind { return RequestKindT1Info }
func (T1InfoRequest) sealed()           {}

type ImagingRequest struct {
	subjectIDs []int
	format     ImageFormat
}

func NewImagingRequest(subjectIDs []int, format ImageFormat) (ImagingRequest, error) {
	if format == "" {
		format = FormatDICOM
	}
	if format != FormatDICOM && format != FormatNIfTI {
		return ImagingRequest{}, fmt.Errorf("%w: unsupported image format %q", ErrUnknownRequest, format)
	}

	ids := make([]int, 0, len(subjectIDs))
	seen := make(map[int]struct{}, len(subjectIDs))
	for _, id := range subjectIDs {
		if id <= 0 {
			return ImagingRequest{}, fmt.Errorf("%w: invalid subject id %d", ErrUnknownRequest, id)
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return ImagingRequest{}, fmt.Errorf("%w: at least one subject id is required", ErrUnknownRequest)
	}
	sort.Ints(ids)

	return ImagingRequest{subjectIDs: ids, format: format}, nil
}

func (ImagingRequest) Kind() RequestKind { return RequestKindImaging }
func (ImagingRequest) sealed()           {}

func (r ImagingRequest) SubjectIDs() []int {
	return append([]int(nil), r.subjectIDs...)
}

func (r ImagingRequest) Format() ImageFormat { return r.format }
