package render

import "encoding/json"

// jsonMarshal escapes s using encoding/json's string escaping table. Used
// only for the rare non-enum string field; the rest of the writer avoids
// encoding/json entirely.
func jsonMarshal(s string) ([]byte, error) {
	return json.Marshal(s)
}
