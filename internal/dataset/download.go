package dataset

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/klauspost/compress/zip"
	"github.com/rs/zerolog/log"
)

// ErrMissingCredentials is returned when no Kaggle API credentials are configured.
var ErrMissingCredentials = errors.New("kaggle credentials not configured")

// Source is a public churn dataset hosted on Kaggle.
type Source struct {
	Name        string
	Ref         string // owner/dataset
	Subfolder   string
	Description string
}

// Catalogue lists the datasets the training pipeline knows how to fetch.
var Catalogue = []Source{
	{Name: "banking", Ref: "mathchi/churn-for-bank-customers", Subfolder: "banking_churn", Description: "Bank customer churn (10k customers)"},
	{Name: "banking-alt", Ref: "gauravtopre/bank-customer-churn-dataset", Subfolder: "banking_churn_alt", Description: "Alternative bank customer churn dataset"},
	{Name: "credit-card", Ref: "sakshigoyal7/credit-card-customers", Subfolder: "credit_card_churn", Description: "Credit card customer attrition"},
	{Name: "telco", Ref: "blastchar/telco-customer-churn", Subfolder: "telco_churn", Description: "Telecom customer churn"},
}

// LookupSource finds a catalogue entry by name.
func LookupSource(name string) (Source, bool) {
	for _, s := range Catalogue {
		if s.Name == name {
			return s, true
		}
	}
	return Source{}, false
}

// Downloader fetches dataset archives from the Kaggle REST API.
type Downloader struct {
	base string
	rest *resty.Client
}

// NewDownloader creates a downloader authenticated with a Kaggle username and API key.
func NewDownloader(base, username, key string, timeout time.Duration) (*Downloader, error) {
	if username == "" || key == "" {
		return nil, ErrMissingCredentials
	}

	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(5 * time.Minute)
	}
	r.SetBasicAuth(username, key).
		SetRetryCount(3).
		SetRetryWaitTime(2 * time.Second).
		SetRetryMaxWaitTime(10 * time.Second)

	return &Downloader{base: strings.TrimRight(base, "/"), rest: r}, nil
}

// Download fetches src and unpacks its CSV files into dataDir/<subfolder>.
// It returns the paths of the extracted files.
func (d *Downloader) Download(ctx context.Context, src Source, dataDir string) ([]string, error) {
	url := fmt.Sprintf("%s/datasets/download/%s", d.base, src.Ref)

	log.Info().Str("dataset", src.Ref).Str("url", url).Msg("Downloading dataset")

	resp, err := d.rest.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("%w: download %s: %v", ErrSourceUnavailable, src.Ref, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("%w: download %s: HTTP %d", ErrSourceUnavailable, src.Ref, resp.StatusCode())
	}

	dest := filepath.Join(dataDir, src.Subfolder)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", dest, err)
	}

	files, err := extractZip(resp.Body(), dest)
	if err != nil {
		return nil, fmt.Errorf("failed to extract %s: %w", src.Ref, err)
	}

	log.Info().
		Str("dataset", src.Ref).
		Str("destination", dest).
		Int("files", len(files)).
		Msg("Dataset downloaded")

	return files, nil
}

func extractZip(archive []byte, dest string) ([]string, error) {
	reader, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, err
	}

	root, err := filepath.Abs(dest)
	if err != nil {
		return nil, err
	}

	var written []string
	for _, f := range reader.File {
		if f.FileInfo().IsDir() {
			continue
		}

		target := filepath.Join(root, filepath.Clean("/"+f.Name))
		if !strings.HasPrefix(target, root+string(os.PathSeparator)) {
			return nil, fmt.Errorf("archive entry %q escapes destination", f.Name)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return nil, err
		}
		if err := writeEntry(f, target); err != nil {
			return nil, err
		}
		written = append(written, target)
	}
	return written, nil
}

func writeEntry(f *zip.File, target string) error {
	src, err := f.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, src); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
