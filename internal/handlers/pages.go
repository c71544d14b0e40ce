package handlers

import (
	"html/template"
	"net/http"

	"github.com/gin-gonic/gin"

	"frameworks/lookout/internal/stream"
)

var indexTmpl = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html>
<head><title>lookout</title></head>
<body>
<h1>Cameras</h1>
<ul>
{{range .Cameras}}<li><a href="/cameras/{{.Camera}}">{{.Camera}}</a> ({{.Brand}}, {{.State}}, {{.Sessions}} viewers)</li>
{{end}}</ul>
</body>
</html>
`))

var cameraTmpl = template.Must(template.New("camera").Parse(`<!DOCTYPE html>
<html>
<head><title>{{.Camera}} - lookout</title></head>
<body>
<h1>{{.Camera}}</h1>
<img src="/api/cameras/{{.Camera}}/feed" alt="{{.Camera}} live view">
<p><a href="/">all cameras</a> | <a href="/api/cameras/{{.Camera}}/status">status</a></p>
</body>
</html>
`))

// HandleIndex renders the camera overview page.
func (h *LookoutHandlers) HandleIndex(c *gin.Context) {
	c.Status(http.StatusOK)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := indexTmpl.Execute(c.Writer, gin.H{"Cameras": h.registry.StatusAll()}); err != nil {
		h.logger.WithError(err).Error("render index page")
	}
}

// HandleCameraPage renders the single-camera viewer page.
func (h *LookoutHandlers) HandleCameraPage(c *gin.Context) {
	st, err := h.registry.StatusFor(c.Param("camera"))
	if err != nil {
		h.abortStreamError(c, err)
		return
	}
	h.renderCamera(c, st)
}

func (h *LookoutHandlers) renderCamera(c *gin.Context, st stream.Status) {
	c.Status(http.StatusOK)
	c.Header("Content-Type", "text/html; charset=utf-8")
	if err := cameraTmpl.Execute(c.Writer, st); err != nil {
		h.logger.WithError(err).Error("render camera page")
	}
}
