package sundaegql

import "encoding/json"

// JSON is an opaque JSON scalar. Values are passed through untouched in both
// directions.
type JSON struct {
	Data interface{}
}

func NewJSON(v interface{}) JSON {
	return JSON{Data: v}
}

func FromRaw(raw json.RawMessage) (JSON, error) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return JSON{}, err
	}
	return JSON{Data: v}, nil
}

func (JSON) ImplementsGraphQLType(name string) bool {
	return name == "JSON"
}

func (a *JSON) UnmarshalGraphQL(input interface{}) error {
	a.Data = input
	return nil
}

func (a JSON) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Data)
}
