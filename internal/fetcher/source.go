package fetcher

import (
	"context"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/hnsc-omics/omics-cli/internal/pipeline"
	"github.com/hnsc-omics/omics-cli/internal/rawtree"
)

// minimlSample mirrors the subset of a MINiML <Sample> element the
// ingestion pipeline consumes.
type minimlSample struct {
	ID              string `xml:"iid,attr"`
	Title           string `xml:"Title"`
	LibraryStrategy string `xml:"Library-Strategy"`
	PlatformRef     struct {
		Ref string `xml:"ref,attr"`
	} `xml:"Platform-Ref"`
	Channel struct {
		Source          string `xml:"Source"`
		Characteristics []struct {
			Tag   string `xml:"tag,attr"`
			Value string `xml:",chardata"`
		} `xml:"Characteristics"`
	} `xml:"Channel"`
}

// GEOSource fetches GEO series metadata and per-sample value tables and
// renders them as raw trees for the pipeline.
type GEOSource struct {
	http Fetcher
	ftp  *FTPFetcher
}

// NewGEOSource creates a GEOSource. GEO serves the same archive tree
// over HTTPS and FTP; the URL scheme selects the transport.
func NewGEOSource(http Fetcher, ftp *FTPFetcher) *GEOSource {
	return &GEOSource{http: http, ftp: ftp}
}

func (s *GEOSource) open(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: parse url %q", rawURL)
	}
	if u.Scheme == "ftp" {
		return s.ftp.Download(ctx, rawURL)
	}
	return s.http.Download(ctx, rawURL)
}

// FetchSeries downloads a MINiML family file and returns one raw record
// per sample, governed by the geo/sample template.
func (s *GEOSource) FetchSeries(ctx context.Context, seriesID, minimlURL string) ([]pipeline.RawRecord, error) {
	body, err := s.open(ctx, minimlURL)
	if err != nil {
		return nil, eris.Wrapf(err, "geo: fetch series %s", seriesID)
	}
	defer body.Close() //nolint:errcheck

	sampleCh, errCh := StreamXML[minimlSample](ctx, body, "Sample")

	var records []pipeline.RawRecord
	for sample := range sampleCh {
		if sample.ID == "" {
			continue
		}
		tree := map[string]any{
			"sample_id":        sample.ID,
			"series_id":        seriesID,
			"title":            strings.TrimSpace(sample.Title),
			"library_strategy": strings.TrimSpace(sample.LibraryStrategy),
			"platform":         sample.PlatformRef.Ref,
			"tissue":           strings.TrimSpace(sample.Channel.Source),
		}
		var characteristics []any
		for _, c := range sample.Channel.Characteristics {
			line := strings.TrimSpace(c.Value)
			if c.Tag != "" {
				line = c.Tag + ": " + line
			}
			characteristics = append(characteristics, line)
		}
		if len(characteristics) > 0 {
			tree["characteristics"] = characteristics
		}
		records = append(records, pipeline.RawRecord{
			Source:     "geo",
			TemplateID: "geo/sample",
			Tree:       rawtree.New(tree),
		})
	}
	if err := <-errCh; err != nil {
		return records, eris.Wrapf(err, "geo: parse series %s", seriesID)
	}

	zap.L().Info("fetched series",
		zap.String("series_id", seriesID),
		zap.Int("samples", len(records)),
	)
	return records, nil
}

// FetchValueTable downloads a tab-separated gene/value supplementary
// table and returns entries suitable for a raw record's values array.
// ZIP-compressed tables are extracted to tempDir first.
func (s *GEOSource) FetchValueTable(ctx context.Context, tableURL, tempDir string) ([]any, error) {
	var r io.ReadCloser
	if strings.HasSuffix(tableURL, ".zip") {
		zipPath := filepath.Join(tempDir, filepath.Base(tableURL))
		if _, err := s.downloadTo(ctx, tableURL, zipPath); err != nil {
			return nil, err
		}
		extracted, err := ExtractZIPSingle(zipPath, tempDir)
		if err != nil {
			return nil, err
		}
		f, err := os.Open(extracted)
		if err != nil {
			return nil, eris.Wrap(err, "geo: open extracted table")
		}
		r = f
	} else {
		var err error
		r, err = s.open(ctx, tableURL)
		if err != nil {
			return nil, eris.Wrapf(err, "geo: fetch value table %s", tableURL)
		}
	}
	defer r.Close() //nolint:errcheck

	rowCh, errCh := StreamCSV(ctx, r, CSVOptions{
		Delimiter: '\t',
		HasHeader: true,
		Comment:   '#',
		TrimSpace: true,
	})

	var values []any
	for row := range rowCh {
		if len(row) < 2 || row[0] == "" {
			continue
		}
		entry := map[string]any{"gene": row[0]}
		if v, ok := rawtree.Float64(row[1]); ok {
			entry["value"] = v
		}
		values = append(values, entry)
	}
	if err := <-errCh; err != nil {
		return values, eris.Wrapf(err, "geo: parse value table %s", tableURL)
	}
	return values, nil
}

func (s *GEOSource) downloadTo(ctx context.Context, rawURL, path string) (int64, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return 0, eris.Wrapf(err, "geo: parse url %q", rawURL)
	}
	if u.Scheme == "ftp" {
		return s.ftp.DownloadToFile(ctx, rawURL, path)
	}
	return s.http.DownloadToFile(ctx, rawURL, path)
}

// CPTACSource fetches proteomics-consortium clinical workbooks and
// renders one raw record per case.
type CPTACSource struct {
	http Fetcher
}

// NewCPTACSource creates a CPTACSource.
func NewCPTACSource(http Fetcher) *CPTACSource {
	return &CPTACSource{http: http}
}

// FetchClinical downloads a clinical XLSX workbook and returns one raw
// record per case row, governed by the cptac/clinical_metadata
// template. Column headers are normalized to lower snake case.
func (s *CPTACSource) FetchClinical(ctx context.Context, workbookURL, tempDir string) ([]pipeline.RawRecord, error) {
	path := filepath.Join(tempDir, filepath.Base(workbookURL))
	if _, err := s.http.DownloadToFile(ctx, workbookURL, path); err != nil {
		return nil, eris.Wrapf(err, "cptac: fetch workbook %s", workbookURL)
	}

	headerCh := make(chan []string, 1)
	rows, err := ReadXLSX(path, XLSXOptions{SkipRows: 1, HeaderCh: headerCh})
	if err != nil {
		return nil, err
	}

	var headers []string
	select {
	case h := <-headerCh:
		for _, col := range h {
			headers = append(headers, normalizeHeader(col))
		}
	default:
		return nil, eris.Errorf("cptac: workbook %s has no header row", workbookURL)
	}

	var records []pipeline.RawRecord
	for _, row := range rows {
		tree := make(map[string]any, len(headers))
		for i, col := range headers {
			if i >= len(row) || row[i] == "" || col == "" {
				continue
			}
			if v, ok := rawtree.Float64(row[i]); ok && col == "age" {
				tree[col] = v
				continue
			}
			tree[col] = row[i]
		}
		if tree["case_id"] == nil {
			continue
		}
		records = append(records, pipeline.RawRecord{
			Source:     "cptac",
			TemplateID: "cptac/clinical_metadata",
			Tree:       rawtree.New(tree),
		})
	}

	zap.L().Info("fetched clinical workbook",
		zap.String("url", workbookURL),
		zap.Int("cases", len(records)),
	)
	return records, nil
}

func normalizeHeader(col string) string {
	col = strings.ToLower(strings.TrimSpace(col))
	col = strings.ReplaceAll(col, " ", "_")
	return strings.ReplaceAll(col, "-", "_")
}

// LoadJSONBatch reads a local file holding a JSON array of raw payloads
// and returns one raw record per element. Used for offline ingestion
// and replays of previously captured payloads.
func LoadJSONBatch(ctx context.Context, path, source, templateID string) ([]pipeline.RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "batch: open %s", path)
	}
	defer f.Close() //nolint:errcheck

	itemCh, errCh := DecodeJSONArray[map[string]any](ctx, f)

	var records []pipeline.RawRecord
	for item := range itemCh {
		records = append(records, pipeline.RawRecord{
			Source:     source,
			TemplateID: templateID,
			Tree:       rawtree.New(item),
		})
	}
	if err := <-errCh; err != nil {
		return records, eris.Wrapf(err, "batch: parse %s", path)
	}
	return records, nil
}
