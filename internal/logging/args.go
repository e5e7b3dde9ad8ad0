package logging

import (
	"fmt"
	"strings"
)

// countVerbs returns the number of printf verbs in message, ignoring "%%".
func countVerbs(message string) int {
	n := 0
	for i := 0; i < len(message)-1; i++ {
		if message[i] != '%' {
			continue
		}
		if message[i+1] == '%' {
			i++
			continue
		}
		n++
	}
	return n
}

// splitArgs accepts both call styles used in this module: printf
// ("started %s", path) and key-value ("Engine started", "pid", 42).
// Leading args fill the message verbs; the rest become fields. A trailing
// unpaired value is stored under "extra".
func splitArgs(message string, args []interface{}) (string, map[string]interface{}) {
	if len(args) == 0 {
		return message, nil
	}

	if strings.Contains(message, "%") {
		if verbs := countVerbs(message); verbs > 0 && len(args) >= verbs {
			message = fmt.Sprintf(message, args[:verbs]...)
			args = args[verbs:]
		}
	}
	if len(args) == 0 {
		return message, nil
	}

	fields := make(map[string]interface{}, len(args)/2+1)
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = fmt.Sprint(args[i])
		}
		fields[key] = args[i+1]
	}
	if len(args)%2 == 1 {
		fields["extra"] = args[len(args)-1]
	}
	return message, fields
}
