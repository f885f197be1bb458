// Package control implements the start/stop control surface of the unicast
// service: the textual command grammar inherited from the switch console
// (<session-uuid> start|stop key=value ...), its validation, and the HTTP
// API that executes commands and exposes monitoring endpoints.
package control
