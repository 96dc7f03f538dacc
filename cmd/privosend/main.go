package main

import "github.com/rudransh-shrivastava/privosend/internal/cli"

func main() {
	cli.Execute()
}
