package onshape

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/onshape-robotics/toolkit/assembly"
	"github.com/onshape-robotics/toolkit/logging"
)

// DefaultRequestTimeout bounds each individual API request.
const DefaultRequestTimeout = 50 * time.Second

const (
	contentTypeJSON   = "application/json"
	acceptJSON        = "application/json"
	acceptOctetStream = "application/vnd.onshape.v1+octet-stream"
)

// Client is the HMAC-signed HTTP implementation of Service.
type Client struct {
	baseURL    string
	accessKey  string
	secretKey  string
	httpClient *http.Client
	timeout    time.Duration
	logger     logging.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a non-default Onshape host.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.timeout = timeout }
}

// WithHTTPClient supplies the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// NewClient builds a client from API keys.
func NewClient(accessKey, secretKey string, logger logging.Logger, opts ...Option) *Client {
	c := &Client{
		baseURL:   DefaultBaseURL,
		accessKey: accessKey,
		secretKey: secretKey,
		// Redirects are signed and followed by hand; the default policy would
		// drop the Authorization header.
		httpClient: &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}},
		timeout: DefaultRequestTimeout,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ Service = (*Client)(nil)

func nonce() string {
	b := make([]byte, 13)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return hex.EncodeToString(b)[:25]
}

// sign builds the Onshape HMAC-SHA256 authorization header for one request.
func (c *Client) sign(method, date, onNonce, path, rawQuery, ctype string) string {
	payload := strings.ToLower(strings.Join([]string{method, onNonce, date, ctype, path, rawQuery}, "\n") + "\n")
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	mac.Write([]byte(payload))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return "On " + c.accessKey + ":HmacSHA256:" + signature
}

func (c *Client) do(ctx context.Context, method, baseURL, path string, query url.Values,
	accept string, body interface{},
) ([]byte, http.Header, error) {
	var bodyReader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, nil, errors.Wrap(err, "encoding request body")
		}
		bodyReader = bytes.NewReader(encoded)
	}

	rawQuery := query.Encode()
	date := time.Now().UTC().Format(http.TimeFormat)
	onNonce := nonce()

	reqURL := baseURL + path
	if rawQuery != "" {
		reqURL += "?" + rawQuery
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, reqURL, bodyReader)
	if err != nil {
		return nil, nil, errors.Wrap(err, "building request")
	}
	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", accept)
	req.Header.Set("Date", date)
	req.Header.Set("On-Nonce", onNonce)
	req.Header.Set("Authorization", c.sign(method, date, onNonce, path, rawQuery, contentTypeJSON))

	c.logger.Debugf("%s %s", method, reqURL)

	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "%s %s", method, path)
	}
	defer res.Body.Close() //nolint:errcheck

	if res.StatusCode == http.StatusTemporaryRedirect {
		location, err := url.Parse(res.Header.Get("Location"))
		if err != nil {
			return nil, nil, errors.Wrap(err, "parsing redirect location")
		}
		c.logger.Debugf("request redirected to %s", location)
		return c.do(ctx, method, location.Scheme+"://"+location.Host, location.Path, location.Query(), accept, nil)
	}

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "reading response of %s %s", method, path)
	}
	if err := statusError(res.StatusCode, string(data), res.Header); err != nil {
		return nil, nil, err
	}
	return data, res.Header, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out interface{}) error {
	data, _, err := c.do(ctx, http.MethodGet, c.baseURL, path, query, acceptJSON, nil)
	if err != nil {
		return err
	}
	return errors.Wrapf(json.Unmarshal(data, out), "decoding response of %s", path)
}

// GetDocumentMetadata fetches document-level metadata such as the default
// workspace id.
func (c *Client) GetDocumentMetadata(ctx context.Context, did string) (*assembly.DocumentMetaData, error) {
	var meta assembly.DocumentMetaData
	if err := c.getJSON(ctx, "/api/documents/"+did, nil, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// GetAssemblyName fetches the sanitized display name of an assembly element.
func (c *Client) GetAssemblyName(ctx context.Context, did string, wtype WorkspaceType, wid, eid,
	configuration string,
) (string, error) {
	query := url.Values{
		"inferMetadataOwner":                {"false"},
		"includeComputedProperties":         {"false"},
		"includeComputedAssemblyProperties": {"false"},
		"thumbnail":                         {"false"},
		"configuration":                     {configuration},
	}
	var result struct {
		Properties []struct {
			Value string `json:"value"`
		} `json:"properties"`
	}
	path := "/api/metadata/d/" + did + "/" + string(wtype) + "/" + wid + "/e/" + eid
	if err := c.getJSON(ctx, path, query, &result); err != nil {
		return "", err
	}
	if len(result.Properties) == 0 {
		c.logger.Warnf("assembly name not found for document %s", did)
		return "", nil
	}
	return assembly.SanitizeName(result.Properties[0].Value), nil
}

func assemblyQuery(configuration string) url.Values {
	return url.Values{
		"includeMateFeatures":   {"true"},
		"includeMateConnectors": {"true"},
		"includeNonSolids":      {"false"},
		"configuration":         {configuration},
	}
}

// GetAssembly implements Service.
func (c *Client) GetAssembly(ctx context.Context, did string, wtype WorkspaceType, wid, eid,
	configuration string, withMeta bool,
) (*assembly.Assembly, error) {
	if configuration == "" {
		configuration = "default"
	}
	var asm assembly.Assembly
	path := "/api/assemblies/d/" + did + "/" + string(wtype) + "/" + wid + "/e/" + eid
	if err := c.getJSON(ctx, path, assemblyQuery(configuration), &asm); err != nil {
		return nil, err
	}
	asm.DocumentID = did
	asm.WorkspaceType = string(wtype)
	asm.WorkspaceID = wid
	asm.ElementID = eid

	if withMeta {
		name, err := c.GetAssemblyName(ctx, did, wtype, wid, eid, configuration)
		if err != nil {
			return nil, err
		}
		asm.Name = name
	}
	return &asm, nil
}

// GetRootAssembly implements Service.
func (c *Client) GetRootAssembly(ctx context.Context, did string, wtype WorkspaceType, wid, eid string,
	withMass bool,
) (*assembly.RootAssembly, error) {
	var payload struct {
		RootAssembly assembly.RootAssembly `json:"rootAssembly"`
	}
	path := "/api/assemblies/d/" + did + "/" + string(wtype) + "/" + wid + "/e/" + eid
	if err := c.getJSON(ctx, path, assemblyQuery("default"), &payload); err != nil {
		return nil, err
	}
	root := payload.RootAssembly

	if withMass {
		massProps, err := c.GetAssemblyMassProperties(ctx, did, wtype, wid, eid)
		if err != nil {
			return nil, err
		}
		root.MassProperty = massProps
	}
	meta, err := c.GetDocumentMetadata(ctx, did)
	if err != nil {
		return nil, err
	}
	root.DocumentMetaData = meta
	return &root, nil
}

// GetAssemblyMassProperties fetches aggregate mass properties of an assembly.
func (c *Client) GetAssemblyMassProperties(ctx context.Context, did string, wtype WorkspaceType,
	wid, eid string,
) (*assembly.MassProperties, error) {
	var massProps assembly.MassProperties
	path := "/api/assemblies/d/" + did + "/" + string(wtype) + "/" + wid + "/e/" + eid + "/massproperties"
	if err := c.getJSON(ctx, path, nil, &massProps); err != nil {
		return nil, err
	}
	return &massProps, nil
}

// GetMassProperty implements Service.
func (c *Client) GetMassProperty(ctx context.Context, did string, wtype WorkspaceType, wid, eid,
	partID string,
) (*assembly.MassProperties, error) {
	var payload struct {
		Bodies map[string]*assembly.MassProperties `json:"bodies"`
	}
	path := "/api/parts/d/" + did + "/" + string(wtype) + "/" + wid + "/e/" + eid + "/partid/" + partID + "/massproperties"
	query := url.Values{"useMassPropertiesOverrides": {"true"}}
	if err := c.getJSON(ctx, path, query, &payload); err != nil {
		return nil, err
	}
	massProps, ok := payload.Bodies[partID]
	if !ok {
		return nil, errors.Errorf("mass properties response has no body for part %s", partID)
	}
	return massProps, nil
}

// DownloadPartSTL implements Service.
func (c *Client) DownloadPartSTL(ctx context.Context, did string, wtype WorkspaceType, wid, eid,
	partID string,
) ([]byte, error) {
	path := "/api/parts/d/" + did + "/" + string(wtype) + "/" + wid + "/e/" + eid + "/partid/" + partID + "/stl"
	query := url.Values{
		"mode":     {"binary"},
		"grouping": {"true"},
		"units":    {"meter"},
	}
	data, _, err := c.do(ctx, http.MethodGet, c.baseURL, path, query, acceptOctetStream, nil)
	return data, err
}

// DownloadAssemblySTL implements Service. The assembly is exported through an
// asynchronous translation job which is polled until it finishes.
func (c *Client) DownloadAssemblySTL(ctx context.Context, did string, wtype WorkspaceType, wid, eid string,
) ([]byte, error) {
	path := "/api/assemblies/d/" + did + "/" + string(wtype) + "/" + wid + "/e/" + eid + "/translations"
	body := map[string]interface{}{
		"formatName":       "STL",
		"storeInDocument":  false,
		"translate":        true,
		"allowFaultyParts": true,
		"units":            "meter",
		"grouping":         true,
		"mode":             "binary",
	}
	data, _, err := c.do(ctx, http.MethodPost, c.baseURL, path, nil, acceptJSON, body)
	if err != nil {
		return nil, err
	}
	var job struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, errors.Wrap(err, "decoding translation job")
	}
	if job.ID == "" {
		return nil, errors.New("translation job id missing from response")
	}

	var status struct {
		RequestState          string   `json:"requestState"`
		ResultExternalDataIDs []string `json:"resultExternalDataIds"`
		FailureReason         string   `json:"failureReason"`
	}
	for {
		data, _, err := c.do(ctx, http.MethodGet, c.baseURL, "/api/translations/"+job.ID, nil, acceptJSON, nil)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &status); err != nil {
			return nil, errors.Wrap(err, "decoding translation status")
		}
		if status.RequestState == "DONE" {
			break
		}
		if status.RequestState == "FAILED" {
			return nil, errors.Errorf("assembly translation failed: %s", status.FailureReason)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
	if len(status.ResultExternalDataIDs) == 0 {
		return nil, errors.New("translation finished without result data")
	}

	dataPath := "/api/documents/d/" + did + "/externaldata/" + status.ResultExternalDataIDs[0]
	stl, _, err := c.do(ctx, http.MethodGet, c.baseURL, dataPath, nil, acceptOctetStream, nil)
	return stl, err
}
