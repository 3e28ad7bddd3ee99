package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

const maxSignatureAge = 5 * time.Minute

var errBadSignature = errors.New("invalid slack signature")

// verifySlackSignature checks the v0 request signature Slack attaches to
// slash command deliveries.
func verifySlackSignature(secret string, header http.Header, body []byte, now time.Time) error {
	tsHeader := header.Get("X-Slack-Request-Timestamp")
	sigHeader := header.Get("X-Slack-Signature")
	if tsHeader == "" || sigHeader == "" {
		return errBadSignature
	}

	ts, err := strconv.ParseInt(tsHeader, 10, 64)
	if err != nil {
		return errBadSignature
	}
	if age := now.Sub(time.Unix(ts, 0)); age > maxSignatureAge || age < -maxSignatureAge {
		return fmt.Errorf("%w: stale timestamp", errBadSignature)
	}

	if !hmac.Equal([]byte(sigHeader), []byte(signSlackRequest(secret, tsHeader, body))) {
		return errBadSignature
	}
	return nil
}

func signSlackRequest(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte("v0:" + timestamp + ":"))
	mac.Write(body)
	return "v0=" + hex.EncodeToString(mac.Sum(nil))
}
