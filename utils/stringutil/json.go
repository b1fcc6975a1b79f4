/*
Copyright © 2020 Marvin

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package stringutil

import (
	"encoding/json"
	"strings"
)

// UnwrapScheme removes http or https scheme from input.
func UnwrapScheme(s string) string {
	if strings.HasPrefix(s, "http://") {
		return s[len("http://"):]
	} else if strings.HasPrefix(s, "https://") {
		return s[len("https://"):]
	}
	return s
}

// WrapSchemes adds http or https scheme to input if missing. input could be a comma-separated list.
func WrapSchemes(str string, https bool) []string {
	items := strings.Split(str, ",")
	output := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s == "" {
			continue
		}
		output = append(output, WrapScheme(s, https))
	}
	return output
}

func WrapScheme(s string, https bool) string {
	if s == "" {
		return s
	}
	s = UnwrapScheme(s)
	if https {
		return "https://" + s
	}
	return "http://" + s
}

// MarshalJSON returns marshal object json
func MarshalJSON(v any) (string, error) {
	jsonStr, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return BytesToString(jsonStr), nil
}

// MarshalIndentJSON returns marshal indent object json
func MarshalIndentJSON(v any) (string, error) {
	jsonStr, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return "", err
	}
	return BytesToString(jsonStr), nil
}
