package ingest

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ledongthuc/pdf"

	"github.com/twinlabs/twind/internal/storage"
)

const (
	fetchTimeout = 30 * time.Second
	maxFetchBody = 2 << 20 // 2 MiB
)

// Fetcher resolves a data source into its textual content.
type Fetcher interface {
	Fetch(ctx context.Context, src storage.DataSource) (string, error)
}

// HTTPFetcher fetches url and provider sources over HTTP and extracts text
// from inline pdf payloads.
type HTTPFetcher struct {
	client *http.Client
}

func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{Timeout: fetchTimeout},
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, src storage.DataSource) (string, error) {
	switch src.Kind {
	case storage.SourceKindText:
		return src.Content, nil
	case storage.SourceKindURL:
		return f.get(ctx, src.URL)
	case storage.SourceKindPDF:
		return extractPDFText(src.Content)
	case storage.SourceKindProvider:
		endpoint, err := providerEndpoint(src.Provider, src.APIKey)
		if err != nil {
			return "", err
		}
		return f.get(ctx, endpoint)
	default:
		return "", fmt.Errorf("unsupported source kind %q", src.Kind)
	}
}

func (f *HTTPFetcher) get(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetching %s: unexpected status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBody))
	if err != nil {
		return "", fmt.Errorf("reading body: %w", err)
	}
	return string(body), nil
}

// extractPDFText decodes a base64 PDF payload and pulls its plain text.
func extractPDFText(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("decoding pdf payload: %w", err)
	}

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}

	text, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(text); err != nil {
		return "", fmt.Errorf("reading pdf text: %w", err)
	}
	return buf.String(), nil
}

// providerEndpoint returns the probe URL for a known data provider.
// FRED, Alpha Vantage, and NewsAPI refuse to probe without an API key.
func providerEndpoint(provider, apiKey string) (string, error) {
	switch provider {
	case "ibge":
		return "https://servicodados.ibge.gov.br/api/v3/agregados/1620/periodos/2023/variaveis/585?localidades=N1[all]", nil
	case "banco_central_brasil":
		today := time.Now().UTC().Format("20060102")
		return fmt.Sprintf("https://olinda.bcb.gov.br/olinda/servico/PTAX/versao/v1/odata/CotacaoDolarDia(dataCotacao=@dataCotacao)?@dataCotacao='%s'&$format=json", today), nil
	case "world_bank":
		return "https://api.worldbank.org/v2/country/BR/indicator/NY.GDP.MKTP.CD?format=json&date=2020:2023", nil
	case "fred":
		if apiKey == "" {
			return "", fmt.Errorf("provider fred requires an api key")
		}
		return fmt.Sprintf("https://api.stlouisfed.org/fred/series/observations?series_id=GDP&api_key=%s&file_type=json&limit=5", apiKey), nil
	case "alpha_vantage":
		if apiKey == "" {
			return "", fmt.Errorf("provider alpha_vantage requires an api key")
		}
		return fmt.Sprintf("https://www.alphavantage.co/query?function=GLOBAL_QUOTE&symbol=PETR4.SA&apikey=%s", apiKey), nil
	case "newsapi":
		if apiKey == "" {
			return "", fmt.Errorf("provider newsapi requires an api key")
		}
		return fmt.Sprintf("https://newsapi.org/v2/top-headlines?country=br&category=business&apiKey=%s", apiKey), nil
	default:
		return "", fmt.Errorf("unsupported provider %q", provider)
	}
}
