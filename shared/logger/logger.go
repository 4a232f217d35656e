// Copyright 2025 QuantumGrid
// SPDX-License-Identifier: BUSL-1.1
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logger

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"time"
)

// LogLevel represents the severity of a log entry
type LogLevel string

const (
	DEBUG LogLevel = "DEBUG"
	INFO  LogLevel = "INFO"
	WARN  LogLevel = "WARN"
	ERROR LogLevel = "ERROR"
)

// Logger provides structured logging with per-pod attribution
type Logger struct {
	Component  string
	InstanceID string
	out        *log.Logger
}

// LogEntry represents a structured log entry. Every orchestration state
// transition is emitted through this format so downstream monitoring can
// correlate records by pod and request id.
type LogEntry struct {
	Timestamp  string                 `json:"timestamp"`
	Level      LogLevel               `json:"level"`
	Component  string                 `json:"component"`
	InstanceID string                 `json:"instance_id"`
	Pod        string                 `json:"pod"`
	RequestID  string                 `json:"request_id,omitempty"`
	Message    string                 `json:"message"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

// New creates a Logger for the given component, writing to stdout.
func New(component string) *Logger {
	return NewWithWriter(component, os.Stdout)
}

// NewWithWriter creates a Logger writing JSON lines to w.
func NewWithWriter(component string, w io.Writer) *Logger {
	// Instance ID is set during deployment
	instanceID := os.Getenv("INSTANCE_ID")
	if instanceID == "" {
		instanceID = "unknown"
	}

	return &Logger{
		Component:  component,
		InstanceID: instanceID,
		out:        log.New(w, "", 0),
	}
}

// Log creates a structured log entry and writes it out as one JSON line
func (l *Logger) Log(level LogLevel, pod, requestID, message string, fields map[string]interface{}) {
	entry := LogEntry{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		Level:      level,
		Component:  l.Component,
		InstanceID: l.InstanceID,
		Pod:        pod,
		RequestID:  requestID,
		Message:    message,
		Fields:     fields,
	}

	jsonBytes, err := json.Marshal(entry)
	if err != nil {
		// Fallback to plain text if JSON marshaling fails
		l.out.Printf("ERROR: Failed to marshal log entry: %v", err)
		return
	}

	l.out.Println(string(jsonBytes))
}

// Info logs an informational message
func (l *Logger) Info(pod, requestID, message string, fields map[string]interface{}) {
	l.Log(INFO, pod, requestID, message, fields)
}

// Error logs an error message
func (l *Logger) Error(pod, requestID, message string, fields map[string]interface{}) {
	l.Log(ERROR, pod, requestID, message, fields)
}

// Warn logs a warning message
func (l *Logger) Warn(pod, requestID, message string, fields map[string]interface{}) {
	l.Log(WARN, pod, requestID, message, fields)
}

// Debug logs a debug message
func (l *Logger) Debug(pod, requestID, message string, fields map[string]interface{}) {
	l.Log(DEBUG, pod, requestID, message, fields)
}

// InfoWithDuration logs an info message with duration field
func (l *Logger) InfoWithDuration(pod, requestID, message string, durationMS float64, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["duration_ms"] = durationMS
	l.Info(pod, requestID, message, fields)
}

// ErrorWithKind logs an error carrying a categorical error kind
func (l *Logger) ErrorWithKind(pod, requestID, message, errorKind string, err error, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["error_kind"] = errorKind
	if err != nil {
		fields["error"] = err.Error()
	}
	l.Error(pod, requestID, message, fields)
}
