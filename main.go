/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>

*/
package main

import "github.com/cioer/DoAn-sub006/cmd"

func main() {
	cmd.Execute()
}
