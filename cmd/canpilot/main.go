// Command canpilot drives the Ford CAN control loop: it decodes vehicle
// state and radar tracks from live buses or captures, encodes steering
// commands and serves the results over HTTP.
package main

func main() {
	Execute()
}
