package weaviate

import "encoding/json"

type graphqlRequest struct {
	Query string `json:"query"`
}

type graphqlResponse struct {
	Data struct {
		Get map[string]json.RawMessage `json:"Get"`
	} `json:"data"`
	Errors []graphqlError `json:"errors"`
}

type graphqlError struct {
	Message string `json:"message"`
}

type objectPayload struct {
	Class      string         `json:"class"`
	ID         string         `json:"id,omitempty"`
	Properties map[string]any `json:"properties"`
}

type classPayload struct {
	Class      string          `json:"class"`
	Properties []classProperty `json:"properties"`
}

type classProperty struct {
	Name     string   `json:"name"`
	DataType []string `json:"dataType"`
}
