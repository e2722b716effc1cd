// The main package for the liquidity-monitor executable.
package main

import "github.com/JakeFAU/liquidity-monitor/cmd"

func main() {
	cmd.Execute()
}
