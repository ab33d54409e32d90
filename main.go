/*
Copyright © 2022 Val Gridnev

*/
package main

import "github.com/valri11/planoverlay/cmd"

func main() {
	cmd.Execute()
}
