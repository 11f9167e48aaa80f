package main

import (
	"fmt"

	_ "github.com/agentuity/go-cache/cache"
	_ "github.com/agentuity/go-cache/config"
	_ "github.com/agentuity/go-cache/env"
	_ "github.com/agentuity/go-cache/logger"
	_ "github.com/agentuity/go-cache/resilience"
	_ "github.com/agentuity/go-cache/sys"
)

func main() {
	fmt.Println("Hi")
}
