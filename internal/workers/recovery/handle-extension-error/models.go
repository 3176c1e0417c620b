// internal/workers/recovery/handle-extension-error/models.go
package handleextensionerror

// Input is the failed extension call a process reports.
type Input struct {
	StatusCode  int                    `json:"statusCode"`
	ServiceName string                 `json:"serviceName"`
	Endpoint    string                 `json:"endpoint"`
	Operation   string                 `json:"operation"`
	Message     string                 `json:"message"`
	UserID      string                 `json:"userId"`
	TenantID    string                 `json:"tenantId"`
	RetryCount  int                    `json:"retryCount"`
	Context     map[string]interface{} `json:"context"`
}

// Output is the recovery outcome handed back to the process.
type Output struct {
	Success            bool        `json:"success"`
	Strategy           string      `json:"strategy"`
	Message            string      `json:"message"`
	FallbackData       interface{} `json:"fallbackData"`
	RetryAfter         *float64    `json:"retryAfter"`
	RequiresUserAction bool        `json:"requiresUserAction"`
	Escalated          bool        `json:"escalated"`
}

const (
	ErrCodeInvalidInput   = "EXTENSION_RECOVERY_INVALID_INPUT"
	ErrCodeRecoveryFailed = "EXTENSION_RECOVERY_FAILED"
)
