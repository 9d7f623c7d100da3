package transport

// Response is the body of every API reply. Data is set on success, Error on failure.
type Response struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Error  *Problem    `json:"error,omitempty"`
}

// Problem describes why a request failed. Code is a domain error code.
type Problem struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

const (
	StatusOK    = "ok"
	StatusError = "error"
)

func OK(data interface{}) Response {
	return Response{Status: StatusOK, Data: data}
}

func Fail(code, message string) Response {
	return Response{Status: StatusError, Error: &Problem{Code: code, Message: message}}
}

// WithDetails attaches details to a failed response; successful responses are unchanged.
func (r Response) WithDetails(details interface{}) Response {
	if r.Error == nil {
		return r
	}
	problem := *r.Error
	problem.Details = details
	r.Error = &problem
	return r
}
