package logging

import (
	"fmt"
	"log"
)

// Infof prints an informational log line.
func Infof(format string, args ...interface{}) {
	log.Print("INFO " + fmt.Sprintf(format, args...))
}

// Warnf prints a warning log line.
func Warnf(format string, args ...interface{}) {
	log.Print("WARN " + fmt.Sprintf(format, args...))
}

// Errorf prints an error log line.
func Errorf(format string, args ...interface{}) {
	log.Print("ERROR " + fmt.Sprintf(format, args...))
}
