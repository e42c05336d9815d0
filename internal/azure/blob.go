package azure

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"subgen/internal/logging"
	"subgen/internal/taxonomy"
)

const (
	storageAPIVersion = "2021-08-06"

	// singlePutLimit is the largest blob uploaded in one request; bigger
	// files go up as staged blocks.
	singlePutLimit = 64 * 1024 * 1024
	blockSize      = 4 * 1024 * 1024
	blockParallel  = 4

	uploadRetries = 3
)

// BlobClient stages audio files in an Azure storage container.
type BlobClient struct {
	accountName string
	accountKey  []byte
	endpoint    string
	container   string
	http        *http.Client
	logger      *slog.Logger
}

// NewBlobClient builds a client from a storage connection string.
func NewBlobClient(connectionString, container string, logger *slog.Logger) (*BlobClient, error) {
	accountName, accountKey, endpoint, err := parseConnectionString(connectionString)
	if err != nil {
		return nil, err
	}
	return &BlobClient{
		accountName: accountName,
		accountKey:  accountKey,
		endpoint:    endpoint,
		container:   container,
		http:        newHTTPClient(),
		logger:      logging.WithComponent(logger, "azure-blob"),
	}, nil
}

func parseConnectionString(connectionString string) (string, []byte, string, error) {
	parts := map[string]string{}
	for _, pair := range strings.Split(connectionString, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, found := strings.Cut(pair, "=")
		if !found {
			continue
		}
		parts[strings.ToLower(key)] = value
	}

	accountName := parts["accountname"]
	rawKey := parts["accountkey"]
	if accountName == "" || rawKey == "" {
		return "", nil, "", taxonomy.Wrap(taxonomy.ErrConfiguration, "azure-blob", "connect",
			"connection string missing AccountName or AccountKey", nil)
	}
	accountKey, err := base64.StdEncoding.DecodeString(rawKey)
	if err != nil {
		return "", nil, "", taxonomy.Wrap(taxonomy.ErrConfiguration, "azure-blob", "connect", "decode account key", err)
	}

	endpoint := strings.TrimRight(parts["blobendpoint"], "/")
	if endpoint == "" {
		protocol := parts["defaultendpointsprotocol"]
		if protocol == "" {
			protocol = "https"
		}
		suffix := parts["endpointsuffix"]
		if suffix == "" {
			suffix = "core.windows.net"
		}
		endpoint = fmt.Sprintf("%s://%s.blob.%s", protocol, accountName, suffix)
	}
	return accountName, accountKey, endpoint, nil
}

// NewBlobName returns a collision-free name under the audio/ prefix,
// preserving the file extension so the speech service can sniff formats.
func NewBlobName(ext string) string {
	return "audio/" + uuid.NewString() + strings.ToLower(ext)
}

func (c *BlobClient) blobURL(blobName string) string {
	return c.endpoint + "/" + c.container + "/" + blobName
}

// Upload stores a local file as the named blob. Small files go up in a
// single request; larger files are staged as parallel blocks and
// committed with a block list.
func (c *BlobClient) Upload(ctx context.Context, blobName, filePath string) error {
	info, err := os.Stat(filePath)
	if err != nil {
		return taxonomy.Wrap(taxonomy.ErrNotFound, "azure-blob", "upload", "stat upload source", err)
	}
	if info.Size() <= singlePutLimit {
		return c.uploadWhole(ctx, blobName, filePath, info.Size())
	}
	return c.uploadBlocks(ctx, blobName, filePath, info.Size())
}

func (c *BlobClient) uploadWhole(ctx context.Context, blobName, filePath string, size int64) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return taxonomy.Wrap(taxonomy.ErrTransient, "azure-blob", "upload", "read upload source", err)
	}
	headers := map[string]string{
		"x-ms-blob-type": "BlockBlob",
		"Content-Type":   "application/octet-stream",
	}
	if err := c.doWithRetry(ctx, http.MethodPut, c.blobURL(blobName), nil, headers, data, http.StatusCreated); err != nil {
		return err
	}
	if c.logger != nil {
		c.logger.Debug("blob uploaded",
			logging.String("blob", blobName), logging.Int64("bytes", size))
	}
	return nil
}

type blockList struct {
	XMLName xml.Name `xml:"BlockList"`
	Latest  []string `xml:"Latest"`
}

func (c *BlobClient) uploadBlocks(ctx context.Context, blobName, filePath string, size int64) error {
	file, err := os.Open(filePath)
	if err != nil {
		return taxonomy.Wrap(taxonomy.ErrTransient, "azure-blob", "upload", "open upload source", err)
	}
	defer file.Close()

	blockCount := int((size + blockSize - 1) / blockSize)
	blockIDs := make([]string, blockCount)
	for i := range blockIDs {
		blockIDs[i] = base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("block-%08d", i)))
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(blockParallel)
	for i := 0; i < blockCount; i++ {
		block := i
		group.Go(func() error {
			offset := int64(block) * blockSize
			length := int64(blockSize)
			if offset+length > size {
				length = size - offset
			}
			data := make([]byte, length)
			if _, err := file.ReadAt(data, offset); err != nil && err != io.EOF {
				return taxonomy.Wrap(taxonomy.ErrTransient, "azure-blob", "upload", "read block", err)
			}
			query := url.Values{
				"comp":    {"block"},
				"blockid": {blockIDs[block]},
			}
			return c.doWithRetry(groupCtx, http.MethodPut, c.blobURL(blobName), query,
				map[string]string{"Content-Type": "application/octet-stream"}, data, http.StatusCreated)
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	list, err := xml.Marshal(blockList{Latest: blockIDs})
	if err != nil {
		return taxonomy.Wrap(taxonomy.ErrTransient, "azure-blob", "upload", "encode block list", err)
	}
	body := append([]byte(xml.Header), list...)
	query := url.Values{"comp": {"blocklist"}}
	if err := c.doWithRetry(ctx, http.MethodPut, c.blobURL(blobName), query,
		map[string]string{"Content-Type": "application/xml"}, body, http.StatusCreated); err != nil {
		return err
	}
	if c.logger != nil {
		c.logger.Debug("blob uploaded in blocks",
			logging.String("blob", blobName), logging.Int64("bytes", size), logging.Int("blocks", blockCount))
	}
	return nil
}

// Delete removes a blob; already-deleted blobs are not an error.
func (c *BlobClient) Delete(ctx context.Context, blobName string) error {
	if strings.TrimSpace(blobName) == "" {
		return nil
	}
	err := c.doWithRetry(ctx, http.MethodDelete, c.blobURL(blobName), nil, nil, nil, http.StatusAccepted)
	if err != nil && errors.Is(err, taxonomy.ErrNotFound) {
		return nil
	}
	return err
}

func (c *BlobClient) doWithRetry(ctx context.Context, method, rawURL string, query url.Values, headers map[string]string, body []byte, wantStatus int) error {
	delay := 2 * time.Second
	var lastErr error
	for attempt := 0; attempt < uploadRetries; attempt++ {
		lastErr = c.do(ctx, method, rawURL, query, headers, body, wantStatus)
		if lastErr == nil {
			return nil
		}
		if !errors.Is(lastErr, taxonomy.ErrTransient) || attempt == uploadRetries-1 {
			return lastErr
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay *= 2
	}
	return lastErr
}

func (c *BlobClient) do(ctx context.Context, method, rawURL string, query url.Values, headers map[string]string, body []byte, wantStatus int) error {
	target := rawURL
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return taxonomy.Wrap(taxonomy.ErrTransient, "azure-blob", strings.ToLower(method), "build request", err)
	}
	req.Header.Set("x-ms-version", storageAPIVersion)
	req.Header.Set("x-ms-date", time.Now().UTC().Format(http.TimeFormat))
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	if body != nil {
		req.ContentLength = int64(len(body))
	}
	req.Header.Set("Authorization", c.authorization(req))

	resp, err := c.http.Do(req)
	if err != nil {
		return taxonomy.Wrap(taxonomy.ErrTransient, "azure-blob", strings.ToLower(method), "storage request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == wantStatus {
		return nil
	}
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	marker := taxonomy.ErrTransient
	switch {
	case resp.StatusCode == http.StatusNotFound:
		marker = taxonomy.ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		marker = taxonomy.ErrConfiguration
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		marker = taxonomy.ErrValidation
	}
	return taxonomy.Wrap(marker, "azure-blob", strings.ToLower(method),
		fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody))), nil)
}

// authorization builds the SharedKey header for a storage request.
func (c *BlobClient) authorization(req *http.Request) string {
	contentLength := ""
	if req.ContentLength > 0 {
		contentLength = strconv.FormatInt(req.ContentLength, 10)
	}
	stringToSign := strings.Join([]string{
		req.Method,
		req.Header.Get("Content-Encoding"),
		req.Header.Get("Content-Language"),
		contentLength,
		req.Header.Get("Content-MD5"),
		req.Header.Get("Content-Type"),
		"", // Date is carried in x-ms-date
		req.Header.Get("If-Modified-Since"),
		req.Header.Get("If-Match"),
		req.Header.Get("If-None-Match"),
		req.Header.Get("If-Unmodified-Since"),
		req.Header.Get("Range"),
		c.canonicalizedHeaders(req),
		c.canonicalizedResource(req),
	}, "\n")

	mac := hmac.New(sha256.New, c.accountKey)
	mac.Write([]byte(stringToSign))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	return "SharedKey " + c.accountName + ":" + signature
}

func (c *BlobClient) canonicalizedHeaders(req *http.Request) string {
	var names []string
	for name := range req.Header {
		lower := strings.ToLower(name)
		if strings.HasPrefix(lower, "x-ms-") {
			names = append(names, lower)
		}
	}
	sort.Strings(names)
	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, name+":"+strings.TrimSpace(req.Header.Get(name)))
	}
	return strings.Join(lines, "\n")
}

func (c *BlobClient) canonicalizedResource(req *http.Request) string {
	resource := "/" + c.accountName + req.URL.EscapedPath()
	if len(req.URL.RawQuery) == 0 {
		return resource
	}
	query := req.URL.Query()
	var names []string
	for name := range query {
		names = append(names, strings.ToLower(name))
	}
	sort.Strings(names)
	var builder strings.Builder
	builder.WriteString(resource)
	for _, name := range names {
		values := query[name]
		sort.Strings(values)
		builder.WriteString("\n" + name + ":" + strings.Join(values, ","))
	}
	return builder.String()
}

// SASURL returns a read-only pre-signed URL for a blob, good for the
// given lifetime. The speech service pulls audio through this URL.
func (c *BlobClient) SASURL(blobName string, lifetime time.Duration) (string, error) {
	if lifetime <= 0 {
		lifetime = 24 * time.Hour
	}
	now := time.Now().UTC()
	start := now.Add(-5 * time.Minute).Format("2006-01-02T15:04:05Z")
	expiry := now.Add(lifetime).Format("2006-01-02T15:04:05Z")

	canonicalResource := "/blob/" + c.accountName + "/" + c.container + "/" + blobName
	stringToSign := strings.Join([]string{
		"r",    // signedPermissions
		start,  // signedStart
		expiry, // signedExpiry
		canonicalResource,
		"",      // signedIdentifier
		"",      // signedIP
		"https", // signedProtocol
		storageAPIVersion,
		"b", // signedResource
		"",  // signedSnapshotTime
		"",  // signedEncryptionScope
		"",  // rscc
		"",  // rscd
		"",  // rsce
		"",  // rscl
		"",  // rsct
	}, "\n")

	mac := hmac.New(sha256.New, c.accountKey)
	mac.Write([]byte(stringToSign))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	query := url.Values{
		"sv":  {storageAPIVersion},
		"sp":  {"r"},
		"sr":  {"b"},
		"st":  {start},
		"se":  {expiry},
		"spr": {"https"},
		"sig": {signature},
	}
	return c.blobURL(blobName) + "?" + query.Encode(), nil
}

// BlobExtension picks the extension used for the staged blob name.
func BlobExtension(filePath string) string {
	ext := strings.ToLower(path.Ext(filePath))
	if ext == "" {
		ext = ".ogg"
	}
	return ext
}
