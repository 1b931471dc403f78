package onshape

import (
	"context"
	"net/http"
)

// Variable is one entry of a variable studio.
type Variable struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Value      string `json:"value,omitempty"`
	Expression string `json:"expression,omitempty"`
}

// GetVariables reads the variable studios of an element, keyed by variable
// name.
func (c *Client) GetVariables(ctx context.Context, did, wid, eid string) (map[string]Variable, error) {
	var payload []struct {
		Variables []Variable `json:"variables"`
	}
	path := "/api/variables/d/" + did + "/w/" + wid + "/e/" + eid + "/variables"
	if err := c.getJSON(ctx, path, nil, &payload); err != nil {
		return nil, err
	}
	out := map[string]Variable{}
	for _, studio := range payload {
		for _, v := range studio.Variables {
			out[v.Name] = v
		}
	}
	return out, nil
}

// SetVariables writes expressions into a variable studio. Editing variables is
// a pre-step that perturbs the assembly before it is fetched; the compiler
// itself never calls this.
func (c *Client) SetVariables(ctx context.Context, did, wid, eid string, expressions map[string]string) error {
	payload := make([]Variable, 0, len(expressions))
	for name, expression := range expressions {
		payload = append(payload, Variable{Name: name, Type: "LENGTH", Expression: expression})
	}
	path := "/api/variables/d/" + did + "/w/" + wid + "/e/" + eid + "/variables"
	_, _, err := c.do(ctx, http.MethodPost, c.baseURL, path, nil, acceptJSON, payload)
	return err
}
