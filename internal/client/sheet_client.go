package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/orgdesk/hrops/internal/apperrors"
)

// EmployeeSheetClient fetches employee data rows from the spreadsheet bridge,
// keyed by national identifier. The bridge is an external collaborator; this
// service only passes its key/value pairs through for display.
type EmployeeSheetClient struct {
	baseURL string
	apiKey  string
	httpc   *http.Client
}

// NewEmployeeSheetClient creates a client for the bridge at baseURL. An empty
// baseURL disables the bridge; lookups then return NOT_FOUND.
func NewEmployeeSheetClient(baseURL, apiKey string) *EmployeeSheetClient {
	return &EmployeeSheetClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpc:   &http.Client{Timeout: 10 * time.Second},
	}
}

// FetchByNationalID returns the sheet row for a national id as ordered
// key/value pairs.
func (c *EmployeeSheetClient) FetchByNationalID(ctx context.Context, nationalID string) (map[string]string, error) {
	if c.baseURL == "" {
		return nil, apperrors.NotFound("employee sheet row", nationalID)
	}

	u := fmt.Sprintf("%s/row?nid=%s", c.baseURL, url.QueryEscape(nationalID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to build sheet request")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeUnavailable, "employee sheet bridge unreachable")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, apperrors.NotFound("employee sheet row", nationalID)
	default:
		return nil, apperrors.New(apperrors.ErrCodeUnavailable,
			fmt.Sprintf("employee sheet bridge returned %d", resp.StatusCode))
	}

	var row map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&row); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "failed to decode sheet row")
	}
	return row, nil
}
