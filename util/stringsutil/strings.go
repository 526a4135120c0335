/*
 * Copyright (c) 2022 The wisp developers.
 * See the LICENSE file for more information.
 */

package stringsutil

// SplitKeyAndValue splits a string between 'key' and 'value' sub elements.
func SplitKeyAndValue(str string, sep byte) (key string, value string) {
	j := -1
	for i := 0; i < len(str); i++ {
		if str[i] == sep {
			j = i
			break
		}
	}
	if j == -1 {
		return "", ""
	}
	return str[0:j], str[j+1:]
}

// UnquoteValue strips surrounding double quotes off a parameter value.
func UnquoteValue(val string) string {
	if len(val) >= 2 && val[0] == '"' && val[len(val)-1] == '"' {
		return val[1 : len(val)-1]
	}
	return val
}
