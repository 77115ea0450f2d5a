package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// DefaultTolerance is how old a signature may be before Verify rejects it
const DefaultTolerance = 5 * time.Minute

var (
	ErrMalformedSignature = errors.New("malformed webhook signature")
	ErrInvalidSignature   = errors.New("webhook signature mismatch")
	ErrSignatureExpired   = errors.New("webhook signature outside tolerance")
)

// Sign returns the signature header for payload sent at ts, in the form
// "t=<unix>,v1=<hex hmac-sha256 of "<unix>.<payload>">".
func Sign(secret string, ts time.Time, payload []byte) string {
	unix := strconv.FormatInt(ts.Unix(), 10)
	return "t=" + unix + ",v1=" + digest(secret, unix, payload)
}

func digest(secret, unix string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(unix))
	mac.Write([]byte{'.'})
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature header against payload. Receivers call it with
// time.Now(); a zero tolerance skips the age check.
func Verify(secret string, payload []byte, header string, now time.Time, tolerance time.Duration) error {
	var unix, sig string
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return ErrMalformedSignature
		}
		switch k {
		case "t":
			unix = v
		case "v1":
			sig = v
		}
	}
	if unix == "" || sig == "" {
		return ErrMalformedSignature
	}

	sec, err := strconv.ParseInt(unix, 10, 64)
	if err != nil {
		return ErrMalformedSignature
	}
	if !hmac.Equal([]byte(sig), []byte(digest(secret, unix, payload))) {
		return ErrInvalidSignature
	}
	if tolerance > 0 {
		if age := now.Sub(time.Unix(sec, 0)); age > tolerance || age < -tolerance {
			return ErrSignatureExpired
		}
	}
	return nil
}
