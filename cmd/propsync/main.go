// Command propsync signs in to the property-management API and keeps a live
// dashboard for the signed-in user.
package main

func main() {
	Execute()
}
