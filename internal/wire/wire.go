// Package wire holds the response conventions shared by the HTTP and gRPC
// transports.
package wire

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/MEKXH/warden/internal/executor"
)

// Content encodings.
const (
	EncodingUTF8   = "utf-8"
	EncodingBase64 = "base64"
)

// Status is embedded in every response. Operation failures set Success to
// false and never surface as transport errors.
type Status struct {
	Success   bool   `json:"success"`
	Error     string `json:"error"`
	ErrorKind string `json:"error_kind,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// StatusOf converts an executor error into a Status.
func StatusOf(err error) Status {
	if err == nil {
		return Status{Success: true}
	}
	st := Status{
		Error:     err.Error(),
		ErrorKind: executor.ErrorKind(err),
	}
	if reason, ok := executor.DenialReason(err); ok {
		st.Reason = string(reason)
	}
	return st
}

// EncodeContent returns data as text when it is valid UTF-8 and as base64
// otherwise.
func EncodeContent(data []byte) (content, encoding string) {
	if utf8.Valid(data) {
		return string(data), EncodingUTF8
	}
	return base64.StdEncoding.EncodeToString(data), EncodingBase64
}

// DecodeContent reverses EncodeContent. An empty encoding means UTF-8.
func DecodeContent(content, encoding string) ([]byte, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", EncodingUTF8, "utf8":
		return []byte(content), nil
	case EncodingBase64:
		data, err := base64.StdEncoding.DecodeString(content)
		if err != nil {
			return nil, fmt.Errorf("content is not valid base64: %w", err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding)
	}
}

// JoinCommand folds separate arguments into one command line, the form the
// validator checks.
func JoinCommand(command string, args []string) string {
	if len(args) == 0 {
		return command
	}
	return command + " " + strings.Join(args, " ")
}
