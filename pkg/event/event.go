// Package event builds the synthetic proxy-integration request handed to a
// function. One Event is created per HTTP request and is immutable after
// construction.
package event

import (
	"net/http"
	"net/url"
)

// Event is the proxy-integration request object sent to a worker.
type Event struct {
	HTTPMethod                      string              `json:"httpMethod"`
	Path                            string              `json:"path"`
	Headers                         map[string]string   `json:"headers"`
	MultiValueHeaders               map[string][]string `json:"multiValueHeaders"`
	QueryStringParameters           map[string]string   `json:"queryStringParameters"`
	MultiValueQueryStringParameters map[string][]string `json:"multiValueQueryStringParameters"`
	PathParameters                  map[string]string   `json:"pathParameters"`
	StageVariables                  map[string]string   `json:"stageVariables"`
	RequestContext                  map[string]any      `json:"requestContext"`
	Body                            string              `json:"body"`
	IsBase64Encoded                 bool                `json:"isBase64Encoded"`
}

// Build constructs the event for an inbound request with its already
// buffered body. Headers and query parameters are flattened twice: a
// single-valued view where the first occurrence wins, and a multi-valued
// view preserving every occurrence in order. The binary-encoding flag is
// always false on ingestion.
func Build(r *http.Request, body []byte) *Event {
	single, multi := Flatten(r.Header)
	q, _ := url.ParseQuery(r.URL.RawQuery)
	qs, qm := Flatten(q)
	return &Event{
		HTTPMethod:                      r.Method,
		Path:                            r.URL.Path,
		Headers:                         single,
		MultiValueHeaders:               multi,
		QueryStringParameters:           qs,
		MultiValueQueryStringParameters: qm,
		PathParameters:                  map[string]string{},
		StageVariables:                  map[string]string{},
		RequestContext:                  map[string]any{},
		Body:                            string(body),
		IsBase64Encoded:                 false,
	}
}

// Flatten turns a multi-map into the single-valued (first occurrence wins)
// and multi-valued (all occurrences, in order) representations.
func Flatten(in map[string][]string) (map[string]string, map[string][]string) {
	single := make(map[string]string, len(in))
	multi := make(map[string][]string, len(in))
	for k, vs := range in {
		if len(vs) == 0 {
			continue
		}
		single[k] = vs[0]
		multi[k] = append([]string(nil), vs...)
	}
	return single, multi
}
