package sentinel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/forest-guardian/vegetation-indices/internal/log"
	"github.com/forest-guardian/vegetation-indices/internal/raster"
	"github.com/paulmach/orb"
	"golang.org/x/oauth2/clientcredentials"
)

const maxRequestPixels = 2500

// Bands are returned as raw digital numbers in the positional order of
// catalog.DefaultBandOrder. CLM takes the QA role: 0 is clear, 1 cloud and
// 255 no data.
const evalscript = `
//VERSION=3
function setup() {
  return {
    input: [{ bands: ["B02", "B04", "B08", "CLM", "dataMask"], units: "DN" }],
    output: { id: "default", bands: 4, sampleType: SampleType.UINT16 },
  }
}

function evaluatePixel(sample) {
  if (sample.dataMask == 0) {
    return [0, 0, 0, 255];
  }
  return [sample.B02, sample.B04, sample.B08, sample.CLM];
}
`

var errUnauthorized = errors.New("unauthorized access, check your client ID and secret")

// Credentials are the comma separated client id and secret lists of the
// Copernicus Data Space accounts. They are tried in order until one works.
type Credentials struct {
	ClientIDs     string
	ClientSecrets string
	TokenURL      string
}

func (c Credentials) pairs() ([][2]string, error) {
	if c.ClientIDs == "" || c.ClientSecrets == "" || c.TokenURL == "" {
		return nil, fmt.Errorf("missing required environment variables: COPERNICUS_CLIENT_ID, COPERNICUS_CLIENT_SECRET, or COPERNICUS_TOKEN_URL")
	}
	ids := strings.Split(c.ClientIDs, ",")
	secrets := strings.Split(c.ClientSecrets, ",")
	if len(ids) != len(secrets) {
		return nil, fmt.Errorf("mismatched number of client IDs and secrets")
	}
	pairs := make([][2]string, len(ids))
	for i := range ids {
		pairs[i] = [2]string{strings.TrimSpace(ids[i]), strings.TrimSpace(secrets[i])}
	}
	return pairs, nil
}

func calculatePixels(distance float64, resolution float64) int {
	pixels := distance * (raster.MetersPerDegree / resolution)
	if pixels < 1 {
		return 1
	}
	if pixels > maxRequestPixels {
		return maxRequestPixels
	}
	return int(pixels)
}

func requestPayload(day time.Time, bound orb.Bound, resolution float64) ([]byte, error) {
	payload := map[string]interface{}{
		"input": map[string]interface{}{
			"bounds": map[string]interface{}{
				"bbox": []float64{bound.Min[0], bound.Min[1], bound.Max[0], bound.Max[1]},
				"properties": map[string]string{
					"crs": "http://www.opengis.net/def/crs/EPSG/0/4326",
				},
			},
			"data": []map[string]interface{}{
				{
					"dataFilter": map[string]interface{}{
						"timeRange": map[string]string{
							"from": day.Format(time.RFC3339),
							"to":   day.Add(24*time.Hour - time.Second).Format(time.RFC3339),
						},
					},
					"type": "sentinel-2-l2a",
				},
			},
		},
		"output": map[string]interface{}{
			"width":  calculatePixels(bound.Max[0]-bound.Min[0], resolution),
			"height": calculatePixels(bound.Max[1]-bound.Min[1], resolution),
			"responses": []map[string]interface{}{
				{
					"identifier": "default",
					"format":     map[string]string{"type": "image/tiff"},
				},
			},
		},
		"evalscript": evalscript,
		"mosaicking": "mostRecent",
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}
	return body, nil
}

// requestImage downloads one day of imagery over bound as a GeoTIFF.
func (f *Fetcher) requestImage(ctx context.Context, day time.Time, bound orb.Bound) ([]byte, error) {
	body, err := requestPayload(day, bound, f.Resolution)
	if err != nil {
		return nil, err
	}
	pairs, err := f.Credentials.pairs()
	if err != nil {
		return nil, err
	}

	for _, pair := range pairs {
		config := &clientcredentials.Config{
			ClientID:     pair[0],
			ClientSecret: pair[1],
			TokenURL:     f.Credentials.TokenURL,
		}
		httpClient := config.Client(ctx)

		var content []byte
		content, err = f.post(ctx, httpClient, body)
		if err == nil {
			return content, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warnf("Credential %s failed: %v", pair[0], err)
	}
	return nil, err
}

func (f *Fetcher) post(ctx context.Context, httpClient *http.Client, body []byte) ([]byte, error) {
	var err error
	for attempt := 1; attempt <= f.Retries; attempt++ {
		var content []byte
		content, err = f.postOnce(ctx, httpClient, body)
		if err == nil {
			return content, nil
		}
		if errors.Is(err, errUnauthorized) {
			return nil, err
		}
		log.Warnf("Attempt %d failed: %v", attempt, err)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(f.Backoff):
		}
	}
	return nil, fmt.Errorf("failed to request image after %d attempts: %w", f.Retries, err)
}

func (f *Fetcher) postOnce(ctx context.Context, httpClient *http.Client, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.ProcessURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "image/tiff")

	response, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	content, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if response.StatusCode == http.StatusOK {
		return content, nil
	}
	if response.StatusCode == http.StatusForbidden || response.StatusCode == http.StatusUnauthorized || strings.Contains(string(content), "403") {
		return nil, errUnauthorized
	}
	return nil, fmt.Errorf("status %d: %s", response.StatusCode, string(content))
}
