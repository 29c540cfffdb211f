package main

import (
	"context"

	"github.com/noah-isme/course-registration-loadsim/cmd/loadsim/commands"
)

func main() {
	commands.ExecuteContext(context.Background())
}
