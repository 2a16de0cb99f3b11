package remote

import (
	"fmt"
	"time"

	"github.com/imroc/req/v3"
	"github.com/openmined/calsync/internal/utils"
	"github.com/openmined/calsync/internal/version"
)

const (
	HeaderVersion  = "X-Calsync-Version"
	HeaderDeviceID = "X-Calsync-Device-Id"
)

// HTTPClient is a client with the common headers and codecs set. Callers
// that need different behaviour clone it.
var HTTPClient = req.C().
	SetCommonRetryCount(3).
	SetCommonRetryFixedInterval(1*time.Second).
	SetUserAgent(version.UserAgent()).
	SetCommonHeader(HeaderVersion, version.Version).
	SetCommonHeader(HeaderDeviceID, utils.HWID).
	SetJsonMarshal(jsonMarshal).
	SetJsonUnmarshal(jsonUnmarshal)

// APIError is the JSON error body some calendar services return.
type APIError struct {
	Message string `json:"error"`
	Code    string `json:"code,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return e.Message
}

func handleAPIError(resp *req.Response, requestErr error, operation string) error {
	if requestErr != nil {
		return fmt.Errorf("http request error: %s %w", operation, requestErr)
	}

	if resp.IsErrorState() {
		if err, ok := resp.ErrorResult().(*APIError); ok && err.Message != "" {
			return fmt.Errorf("%s: %w", operation, err)
		}
		return fmt.Errorf("%s: unexpected status %s", operation, resp.Status)
	}

	return nil
}
