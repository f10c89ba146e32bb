package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"dispatchcore/platform/logger"
)

// HolidayProvider fetches public holidays for a region and year.
// Implementations must honor the request context deadline.
type HolidayProvider interface {
	PublicHolidays(ctx context.Context, countryCode string, year int) ([]Holiday, error)
}

// HTTPHolidayProvider queries a Nager.Date-compatible holiday API.
type HTTPHolidayProvider struct {
	baseURL string
	client  *http.Client
	log     *logger.Logger
}

// NewHTTPHolidayProvider creates a holiday client against the given base URL.
func NewHTTPHolidayProvider(baseURL string, timeout time.Duration, log *logger.Logger) *HTTPHolidayProvider {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPHolidayProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		log:     log,
	}
}

type holidayResponse struct {
	Date      string `json:"date"` // "2026-12-25"
	LocalName string `json:"localName"`
	Name      string `json:"name"`
}

// PublicHolidays fetches the holiday list for one year.
func (p *HTTPHolidayProvider) PublicHolidays(ctx context.Context, countryCode string, year int) ([]Holiday, error) {
	reqURL := fmt.Sprintf("%s/PublicHolidays/%d/%s", p.baseURL, year, url.PathEscape(countryCode))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Error("holiday request failed", "error", err)
		return nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		p.log.Error("holiday upstream error", "status", resp.StatusCode)
		return nil, fmt.Errorf("upstream api error: %d", resp.StatusCode)
	}

	var raw []holidayResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		p.log.Error("failed to decode holiday payload", "error", err)
		return nil, err
	}

	holidays := make([]Holiday, 0, len(raw))
	for _, h := range raw {
		date, err := time.Parse("2006-01-02", h.Date)
		if err != nil {
			continue
		}
		name := h.LocalName
		if name == "" {
			name = h.Name
		}
		holidays = append(holidays, Holiday{Date: date, Name: name, Region: countryCode})
	}

	return holidays, nil
}
