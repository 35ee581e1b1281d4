package main

import (
	"io"
	"net/http"

	"github.com/J1407B-K/buffwire/buff"
)

type Foo struct {
	Bar string `json:"bar"`
}

func PongHandler(c *buff.Context) {
	var foo Foo
	if err := c.Bind(&foo); err != nil {
		_ = c.JSON(buff.StatusCode(err), map[string]string{"error": err.Error()})
		return
	}
	_ = c.JSON(http.StatusOK, foo)
}

// UploadHandler streams the body and reports how much arrived.
func UploadHandler(c *buff.Context) {
	body, err := c.Request.Body()
	if err != nil {
		_ = c.JSON(buff.StatusCode(err), map[string]string{"error": err.Error()})
		return
	}
	n, err := io.Copy(io.Discard, body)
	if err != nil {
		_ = c.JSON(buff.StatusCode(err), map[string]string{"error": err.Error()})
		return
	}
	_ = c.JSON(http.StatusOK, map[string]int64{"received": n})
}
