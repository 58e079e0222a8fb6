// Package platesolve submits star-field photographs to an astrometry.net
// compatible service and turns the solution into sky coordinates.
//
// A solve runs through login, upload, a bounded wait for the service to
// assign a job, and a bounded wait for that job to finish:
//
//	POST /api/login               request-json={"apikey":...}          -> {"session":...}
//	POST /api/upload              request-json={"session":...} + file  -> {"subid":...}
//	GET  /api/submissions/<subid>                                     -> {"jobs":[...]}
//	GET  /api/jobs/<id>                                               -> {"status":...}
//	GET  /api/jobs/<id>/calibration                                   -> {"ra":...,"dec":...}
//	GET  /api/jobs/<id>/info/                                         -> {"objects_in_field":[...]}
package platesolve

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/syt1126/StarLink-Pro-app/internal/astro"
	"github.com/syt1126/StarLink-Pro-app/internal/fault"
)

// DefaultBaseURL is the public astrometry.net service.
const DefaultBaseURL = "https://nova.astrometry.net"

// maxResponseBytes bounds how much of any response body is read.
const maxResponseBytes = 1 << 20

// Client talks to the astrometry HTTP API. It holds no session state; the
// session token lives in the Job that obtained it.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Client for baseURL. Per-request timeouts are applied
// by the caller through the context, so httpClient should not set one.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// BaseURL returns the configured service URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// UploadSettings are the solver hints sent with every upload.
type UploadSettings struct {
	PubliclyVisible string  `json:"publicly_visible"`
	ScaleUnits      string  `json:"scale_units"`
	ScaleLower      float64 `json:"scale_lower"`
	ScaleUpper      float64 `json:"scale_upper"`
}

// DefaultUploadSettings accept any field width from 0.1 to 180 degrees.
func DefaultUploadSettings() UploadSettings {
	return UploadSettings{
		PubliclyVisible: "y",
		ScaleUnits:      "degwidth",
		ScaleLower:      0.1,
		ScaleUpper:      180,
	}
}

type statusResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"errormessage"`
}

type loginResponse struct {
	statusResponse
	Session string `json:"session"`
}

type uploadResponse struct {
	statusResponse
	SubID json.Number `json:"subid"`
}

type submissionResponse struct {
	Jobs []*json.Number `json:"jobs"`
}

type calibrationResponse struct {
	RA  *float64 `json:"ra"`
	Dec *float64 `json:"dec"`
}

type infoResponse struct {
	ObjectsInField []string `json:"objects_in_field"`
}

// Login exchanges apiKey for a session token.
func (c *Client) Login(ctx context.Context, apiKey string) (string, error) {
	const op = "platesolve.login"

	payload, err := json.Marshal(map[string]string{"apikey": apiKey})
	if err != nil {
		return "", fault.Wrap(fault.InputError, op, "encoding request", err)
	}
	form := url.Values{"request-json": {string(payload)}}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/login", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fault.Wrap(fault.InputError, op, "creating request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var resp loginResponse
	if err := c.do(req, op, &resp); err != nil {
		return "", err
	}
	if resp.Session == "" {
		return "", rejection(op, "login failed", resp.statusResponse)
	}
	return resp.Session, nil
}

// Upload submits an image under session and returns the submission id.
func (c *Client) Upload(ctx context.Context, session, fileName string, image []byte, settings UploadSettings) (int, error) {
	const op = "platesolve.upload"

	meta, err := json.Marshal(struct {
		Session string `json:"session"`
		UploadSettings
	}{Session: session, UploadSettings: settings})
	if err != nil {
		return 0, fault.Wrap(fault.InputError, op, "encoding request", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("request-json", string(meta)); err != nil {
		return 0, fault.Wrap(fault.InputError, op, "building form", err)
	}
	part, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return 0, fault.Wrap(fault.InputError, op, "building form", err)
	}
	if _, err := part.Write(image); err != nil {
		return 0, fault.Wrap(fault.InputError, op, "building form", err)
	}
	if err := mw.Close(); err != nil {
		return 0, fault.Wrap(fault.InputError, op, "building form", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload", &body)
	if err != nil {
		return 0, fault.Wrap(fault.InputError, op, "creating request", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var resp uploadResponse
	if err := c.do(req, op, &resp); err != nil {
		return 0, err
	}
	subID, err := positiveID(resp.SubID)
	if err != nil {
		return 0, rejection(op, "upload failed", resp.statusResponse)
	}
	return subID, nil
}

// SubmissionJob returns the first job id assigned to a submission. ok is
// false while the service has not assigned one yet.
func (c *Client) SubmissionJob(ctx context.Context, subID int) (jobID int, ok bool, err error) {
	const op = "platesolve.submission"

	var resp submissionResponse
	if err := c.getJSON(ctx, op, fmt.Sprintf("/api/submissions/%d", subID), &resp); err != nil {
		return 0, false, err
	}
	for _, j := range resp.Jobs {
		if j == nil {
			continue
		}
		id, err := positiveID(*j)
		if err != nil {
			return 0, false, fault.Wrap(fault.ProtocolError, op, "malformed job id", err)
		}
		return id, true, nil
	}
	return 0, false, nil
}

// JobStatus returns the job's status string ("solving", "success",
// "failure", or "" before the service reports one).
func (c *Client) JobStatus(ctx context.Context, jobID int) (string, error) {
	var resp statusResponse
	if err := c.getJSON(ctx, "platesolve.job", fmt.Sprintf("/api/jobs/%d", jobID), &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// Calibration returns the solved field centre.
func (c *Client) Calibration(ctx context.Context, jobID int) (astro.Equatorial, error) {
	const op = "platesolve.calibration"

	var resp calibrationResponse
	if err := c.getJSON(ctx, op, fmt.Sprintf("/api/jobs/%d/calibration", jobID), &resp); err != nil {
		return astro.Equatorial{}, err
	}
	if resp.RA == nil || resp.Dec == nil {
		return astro.Equatorial{}, fault.New(fault.ProtocolError, op, "calibration has no ra/dec")
	}
	eq := astro.Equatorial{RA: astro.Normalize360(*resp.RA), Dec: *resp.Dec}
	if !eq.Valid() {
		return astro.Equatorial{}, fault.New(fault.ProtocolError, op, fmt.Sprintf("calibration out of range: %s", eq))
	}
	return eq, nil
}

// Objects returns the named objects the service found in the field.
func (c *Client) Objects(ctx context.Context, jobID int) ([]string, error) {
	var resp infoResponse
	if err := c.getJSON(ctx, "platesolve.info", fmt.Sprintf("/api/jobs/%d/info/", jobID), &resp); err != nil {
		return nil, err
	}
	return resp.ObjectsInField, nil
}

func (c *Client) getJSON(ctx context.Context, op, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fault.Wrap(fault.InputError, op, "creating request", err)
	}
	return c.do(req, op, v)
}

// do executes req and decodes a JSON body into v.
func (c *Client) do(req *http.Request, op string, v any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fault.Wrap(fault.TimeoutError, op, "request timed out", err)
		}
		if errors.Is(err, context.Canceled) {
			return fault.Wrap(fault.Cancelled, op, "request cancelled", err)
		}
		return fault.Wrap(fault.NetworkError, op, "request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fault.Wrap(fault.NetworkError, op, "reading response body", err)
	}

	c.logger.Debug("astrometry response",
		"component", "platesolve",
		"op", op,
		"status", resp.StatusCode,
		"bytes", len(body),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fault.New(fault.ProtocolError, op, fmt.Sprintf("unexpected status code %d from %s", resp.StatusCode, req.URL.Path))
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fault.Wrap(fault.ProtocolError, op, "decoding response", err)
	}
	return nil
}

func rejection(op, msg string, s statusResponse) error {
	if s.ErrorMessage != "" {
		msg += ": " + s.ErrorMessage
	}
	return fault.New(fault.RemoteRejection, op, msg)
}

func positiveID(n json.Number) (int, error) {
	if n == "" {
		return 0, errors.New("missing id")
	}
	id, err := strconv.Atoi(n.String())
	if err != nil {
		return 0, fmt.Errorf("parsing id %q: %w", n, err)
	}
	if id <= 0 {
		return 0, fmt.Errorf("id %d is not positive", id)
	}
	return id, nil
}
