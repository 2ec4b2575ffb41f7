package application

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/livingpark/ppmi-downloader/internal/domain"
)

var ErrNiftiNotFound = errors.New("nifti file not found")

// VisitNames maps study-data event IDs to the visit names image metadata
// uses.
var VisitNames = map[string]string{
	"SC":  "Screening",
	"BL":  "Baseline",
	"V04": "Month 12",
	"V06": "Month 24",
	"V08": "Month 36",
	"V10": "Month 48",
	"ST":  "Symptomatic Therapy",
	"U01": "Unscheduled Visit 01",
	"U02": "Unscheduled Visit 02",
	"PW":  "Premature Withdrawal",
}

// ImageMetadata is the part of a collection's PPMI_<subject>_*.xml file
// needed to locate the image it describes.
type ImageMetadata struct {
	SubjectID   string
	Visit       string
	StudyID     string
	SeriesID    string
	ImageID     string
	Description string
}

type metadataDocument struct {
	Projects []struct {
		Subjects []metadataSubject `xml:"subject"`
	} `xml:"project"`
}

type metadataSubject struct {
	ID    string `xml:"subjectIdentifier"`
	Visit struct {
		ID string `xml:"visitIdentifier"`
	} `xml:"visit"`
	Study struct {
		ID     string `xml:"studyIdentifier"`
		Series struct {
			ID string `xml:"seriesIdentifier"`
		} `xml:"series"`
		Protocol struct {
			ImageUID    string `xml:"imageUID"`
			Description string `xml:"description"`
		} `xml:"imagingProtocol"`
	} `xml:"study"`
}

// ParseImageMetadata reads the first subject of the first project listing
// one. Every identifier and the protocol description must be present.
func ParseImageMetadata(r io.Reader) (ImageMetadata, error) {
	var doc metadataDocument
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return ImageMetadata{}, fmt.Errorf("decode image metadata: %w", err)
	}

	for _, project := range doc.Projects {
		if len(project.Subjects) == 0 {
			continue
		}
		subject := project.Subjects[0]
		meta := ImageMetadata{
			SubjectID:   strings.TrimSpace(subject.ID),
			Visit:       strings.TrimSpace(subject.Visit.ID),
			StudyID:     strings.TrimSpace(subject.Study.ID),
			SeriesID:    strings.TrimSpace(subject.Study.Series.ID),
			ImageID:     strings.TrimSpace(subject.Study.Protocol.ImageUID),
			Description: strings.TrimSpace(subject.Study.Protocol.Description),
		}
		if meta.SubjectID == "" || meta.Visit == "" || meta.StudyID == "" || meta.SeriesID == "" || meta.ImageID == "" || meta.Description == "" {
			return meta, errors.New("image metadata is incomplete")
		}
		return meta, nil
	}
	return ImageMetadata{}, errors.New("image metadata lists no subject")
}

// NiftiFinder locates NIfTI files in an extracted image collection: dir
// holds the PPMI_<subject>_*.xml metadata files and one directory per subject.
type NiftiFinder struct {
	dir string
}

func NewNiftiFinder(dir string) *NiftiFinder {
	return &NiftiFinder{dir: dir}
}

// Find returns the .nii file of subjectID acquired at eventID (an event ID
// such as "V06", or the visit name itself) with the given protocol
// description.
func (f *NiftiFinder) Find(subjectID int, eventID, description string) (string, error) {
	visit, err := visitName(eventID)
	if err != nil {
		return "", err
	}
	subject := strconv.Itoa(subjectID)

	metadataFiles, err := filepath.Glob(filepath.Join(f.dir, fmt.Sprintf("PPMI_%s_*.xml", subject)))
	if err != nil {
		return "", fmt.Errorf("list image metadata: %w", err)
	}

	for _, path := range metadataFiles {
		meta, err := readImageMetadata(path)
		if err != nil {
			return "", err
		}
		if meta.SubjectID != subject || meta.Visit != visit || meta.Description != description {
			continue
		}
		return f.niftiFile(meta)
	}

	return "", fmt.Errorf("%w: subject %s, visit %q, protocol %q", ErrNiftiNotFound, subject, visit, description)
}

func (f *NiftiFinder) niftiFile(meta ImageMetadata) (string, error) {
	pattern := filepath.Join(
		f.dir,
		meta.SubjectID,
		cleanDescription(meta.Description),
		"*",
		"S"+meta.SeriesID,
		fmt.Sprintf("PPMI_%s_MR_*_S%s_I%s.nii", meta.SubjectID, meta.SeriesID, meta.ImageID),
	)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", fmt.Errorf("list nifti files: %w", err)
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w: nothing matches %s", ErrNiftiNotFound, pattern)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%d files match %s, expected one", len(matches), pattern)
	}
}

func readImageMetadata(path string) (ImageMetadata, error) {
	file, err := os.Open(path)
	if err != nil {
		return ImageMetadata{}, fmt.Errorf("open image metadata: %w", err)
	}
	defer func() { _ = file.Close() }()

	meta, err := ParseImageMetadata(file)
	if err != nil {
		return meta, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return meta, nil
}

func visitName(eventID string) (string, error) {
	eventID = strings.TrimSpace(eventID)
	if visit, ok := VisitNames[strings.ToUpper(eventID)]; ok {
		return visit, nil
	}
	for _, visit := range VisitNames {
		if strings.EqualFold(visit, eventID) {
			return visit, nil
		}
	}
	return "", fmt.Errorf("%w: unknown event id %q", domain.ErrUnknownRequest, eventID)
}

// cleanDescription maps a protocol description to the directory name the
// collection uses for it.
func cleanDescription(description string) string {
	return strings.NewReplacer(" ", "_", "(", "_", ")", "_", "/", "_").Replace(description)
}
