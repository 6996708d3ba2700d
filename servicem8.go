package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

// ErrNotConnected means there is no usable ServiceM8 token: either the
// account was never linked or the refresh failed. Callers surface it as a
// reconnect prompt, not a crash.
var ErrNotConnected = errors.New("servicem8 account not connected")

const (
	sm8APIBase       = "https://api.servicem8.com/api_1.0"
	sm8AuthorizeURL  = "https://go.servicem8.com/oauth/authorize"
	sm8TokenURL      = "https://go.servicem8.com/oauth/access_token"
	sm8SMSEndpoint   = "https://api.servicem8.com/platform_sms_send"
	sm8EmailEndpoint = "https://api.servicem8.com/platform_email_send"
)

// serviceM8Client talks to the ServiceM8 REST API using the OAuth2
// authorization-code flow. The single token row lives in oauth_tokens and is
// refreshed lazily when expired.
type serviceM8Client struct {
	appID     string
	appSecret string

	apiBase       string
	authorizeURL  string
	tokenURL      string
	smsEndpoint   string
	emailEndpoint string

	httpClient *http.Client
	db         *sql.DB

	mu sync.Mutex
}

var sm8 *serviceM8Client

func newServiceM8Client(appID, appSecret string, db *sql.DB) *serviceM8Client {
	return &serviceM8Client{
		appID:         appID,
		appSecret:     appSecret,
		apiBase:       sm8APIBase,
		authorizeURL:  sm8AuthorizeURL,
		tokenURL:      sm8TokenURL,
		smsEndpoint:   sm8SMSEndpoint,
		emailEndpoint: sm8EmailEndpoint,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		db:            db,
	}
}

// AuthorizeURL builds the user-facing OAuth consent URL.
func (c *serviceM8Client) AuthorizeURL(redirectURI, state string) string {
	q := url.Values{
		"response_type": {"code"},
		"client_id":     {c.appID},
		"redirect_uri":  {redirectURI},
		"scope":         {"read_jobs manage_jobs read_customers read_job_notes publish_sms publish_email"},
		"state":         {state},
	}
	return c.authorizeURL + "?" + q.Encode()
}

type sm8TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
}

// ExchangeCode trades an authorization code for tokens and persists them.
func (c *serviceM8Client) ExchangeCode(code, redirectURI string) error {
	return c.requestToken(url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {code},
		"redirect_uri":  {redirectURI},
		"client_id":     {c.appID},
		"client_secret": {c.appSecret},
	})
}

func (c *serviceM8Client) requestToken(form url.Values) error {
	resp, err := c.httpClient.Post(c.tokenURL, "application/x-www-form-urlencoded", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("servicem8 token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("servicem8 token error %d: %s", resp.StatusCode, string(body))
	}

	var tok sm8TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return fmt.Errorf("servicem8 token decode error: %w", err)
	}
	return c.saveToken(tok)
}

func (c *serviceM8Client) saveToken(tok sm8TokenResponse) error {
	expires := time.Now().Add(time.Duration(tok.ExpiresIn-60) * time.Second).UTC().Format(time.RFC3339)
	_, err := c.db.Exec(`INSERT INTO oauth_tokens (provider, access_token, refresh_token, expires_at, updated_at)
		VALUES ('servicem8', ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(provider) DO UPDATE SET access_token=excluded.access_token,
			refresh_token=CASE WHEN excluded.refresh_token='' THEN oauth_tokens.refresh_token ELSE excluded.refresh_token END,
			expires_at=excluded.expires_at, updated_at=CURRENT_TIMESTAMP`,
		tok.AccessToken, tok.RefreshToken, expires)
	return err
}

// token returns a valid access token, refreshing lazily when expired.
func (c *serviceM8Client) token() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var access, refresh, expiresAt string
	err := c.db.QueryRow("SELECT access_token, COALESCE(refresh_token,''), COALESCE(expires_at,'') FROM oauth_tokens WHERE provider='servicem8'").
		Scan(&access, &refresh, &expiresAt)
	if err != nil {
		return "", ErrNotConnected
	}

	if expiresAt != "" {
		if exp, perr := time.Parse(time.RFC3339, expiresAt); perr == nil && time.Now().After(exp) {
			if refresh == "" {
				return "", ErrNotConnected
			}
			if err := c.requestToken(url.Values{
				"grant_type":    {"refresh_token"},
				"refresh_token": {refresh},
				"client_id":     {c.appID},
				"client_secret": {c.appSecret},
			}); err != nil {
				return "", fmt.Errorf("%w: refresh failed: %v", ErrNotConnected, err)
			}
			if err := c.db.QueryRow("SELECT access_token FROM oauth_tokens WHERE provider='servicem8'").Scan(&access); err != nil {
				return "", ErrNotConnected
			}
		}
	}
	return access, nil
}

// Connected reports whether a usable token exists (refreshing if needed).
func (c *serviceM8Client) Connected() bool {
	_, err := c.token()
	return err == nil
}

// Disconnect drops the stored token.
func (c *serviceM8Client) Disconnect() error {
	_, err := c.db.Exec("DELETE FROM oauth_tokens WHERE provider='servicem8'")
	return err
}

// get fetches one list endpoint, e.g. list("job.json", filter, 1000).
// ServiceM8 list endpoints page by $top and filter by OData-style $filter.
func (c *serviceM8Client) list(resource, filter string, top int, out interface{}) error {
	token, err := c.token()
	if err != nil {
		return err
	}

	q := url.Values{}
	if top > 0 {
		q.Set("$top", fmt.Sprintf("%d", top))
	}
	if filter != "" {
		q.Set("$filter", filter)
	}

	endpoint := c.apiBase + "/" + resource
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	req, err := http.NewRequest("GET", endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("servicem8 %s request failed: %w", resource, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == 401 {
		return fmt.Errorf("%w: token rejected", ErrNotConnected)
	}
	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("servicem8 %s error %d: %s", resource, resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("servicem8 %s decode error: %w", resource, err)
	}
	return nil
}

// ServiceM8 record shapes, limited to the fields the sync consumes.

type sm8Job struct {
	UUID           string `json:"uuid"`
	GeneratedJobID string `json:"generated_job_id"`
	Status         string `json:"status"`
	JobAddress     string `json:"job_address"`
	JobDescription string `json:"job_description"`
	QuoteSent      string `json:"quote_sent"`
	QuoteSentStamp string `json:"quote_sent_stamp"`
	TotalInvoice   string `json:"total_invoice_amount"`
	CompanyUUID    string `json:"company_uuid"`
	Active         int    `json:"active"`
}

type sm8Company struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

type sm8Contact struct {
	UUID        string `json:"uuid"`
	CompanyUUID string `json:"company_uuid"`
	FirstName   string `json:"first"`
	LastName    string `json:"last"`
	Mobile      string `json:"mobile"`
	Email       string `json:"email"`
	Type        string `json:"type"`
}

type sm8Note struct {
	UUID              string `json:"uuid"`
	RelatedObjectUUID string `json:"related_object_uuid"`
	Note              string `json:"note"`
	CreateDate        string `json:"create_date"`
}

// sm8FeedItem is a job activity entry. Unlike free-text notes it carries an
// explicit message type for sent/received emails and SMS.
type sm8FeedItem struct {
	UUID              string `json:"uuid"`
	RelatedObjectUUID string `json:"related_object_uuid"`
	MessageType       string `json:"message_type"`
	Message           string `json:"message"`
	Timestamp         string `json:"timestamp"`
}

func (c *serviceM8Client) ListJobs() ([]sm8Job, error) {
	var jobs []sm8Job
	if err := c.list("job.json", "active eq '1'", 1000, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (c *serviceM8Client) ListCompanies() ([]sm8Company, error) {
	var companies []sm8Company
	if err := c.list("company.json", "active eq '1'", 1000, &companies); err != nil {
		return nil, err
	}
	return companies, nil
}

func (c *serviceM8Client) ListContacts() ([]sm8Contact, error) {
	var contacts []sm8Contact
	if err := c.list("companycontact.json", "", 1000, &contacts); err != nil {
		return nil, err
	}
	return contacts, nil
}

func (c *serviceM8Client) ListNotes() ([]sm8Note, error) {
	var notes []sm8Note
	if err := c.list("note.json", "", 1000, &notes); err != nil {
		return nil, err
	}
	return notes, nil
}

func (c *serviceM8Client) ListFeedItems() ([]sm8FeedItem, error) {
	var items []sm8FeedItem
	if err := c.list("feeditem.json", "", 1000, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// SendSMS sends an outbound SMS through the ServiceM8 platform endpoint.
func (c *serviceM8Client) SendSMS(to, message string) error {
	return c.platformSend(c.smsEndpoint, map[string]string{
		"to":      to,
		"message": message,
	})
}

// SendEmail sends an outbound email through the ServiceM8 platform endpoint.
func (c *serviceM8Client) SendEmail(to, subject, body string) error {
	return c.platformSend(c.emailEndpoint, map[string]string{
		"to":      to,
		"subject": subject,
		"body":    body,
	})
}

func (c *serviceM8Client) platformSend(endpoint string, payload map[string]string) error {
	token, err := c.token()
	if err != nil {
		return err
	}

	bodyBytes, _ := json.Marshal(payload)
	req, err := http.NewRequest("POST", endpoint, strings.NewReader(string(bodyBytes)))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("servicem8 send failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("servicem8 send error %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
