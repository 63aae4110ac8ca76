// gh-cc-members is a GitHub CLI extension that adds users listed in a CSV
// or XLSX file to a GitHub Enterprise billing cost center.
//
// Install:
//
//	gh extension install canarys/gh-cc-members
//
// Usage:
//
//	gh cc-members add --input users.csv
//	gh cc-members add --input users.csv --mode apply --yes
package main

import "github.com/canarys/gh-cc-members/cmd"

func main() {
	cmd.Execute()
}
