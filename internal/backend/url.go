package backend

import (
	"fmt"
	"net/url"
	"strings"
)

const (
	defaultRTSPPort = 554
	defaultHTTPPort = 80
)

// SupportedBrands lists the camera brands URL construction understands.
func SupportedBrands() []string {
	return []string{"HIKVISION", "EZVIZ", "INTELBRAS", "WEBCAM"}
}

// IsWebcam reports whether the brand maps to a local capture device rather
// than a network source.
func IsWebcam(brand string) bool {
	return strings.EqualFold(brand, "WEBCAM")
}

// RTSPURL builds the RTSP source URL for a descriptor. SourceURL wins when
// set; otherwise the URL follows the brand's path convention.
func RTSPURL(d Descriptor) (string, error) {
	if d.SourceURL != "" {
		return d.SourceURL, nil
	}

	port := d.Port
	if port == 0 {
		port = defaultRTSPPort
	}
	channel := d.Channel
	if channel == 0 {
		channel = 1
	}
	cred := url.UserPassword(d.Username, d.Password).String()

	switch strings.ToUpper(d.Brand) {
	case "HIKVISION", "EZVIZ":
		// Shared URL format: /Streaming/Channels/<channel><stream>, where
		// stream 01 is main and 02 is sub.
		stream := 1
		if d.StreamType == "sub" {
			stream = 2
		}
		return fmt.Sprintf("rtsp://%s@%s:%d/Streaming/Channels/%d0%d", cred, d.Host, port, channel, stream), nil

	case "INTELBRAS":
		subtype := 0
		if d.StreamType == "sub" {
			subtype = 1
		}
		return fmt.Sprintf("rtsp://%s@%s:%d/cam/realmonitor?channel=%d&subtype=%d", cred, d.Host, port, channel, subtype), nil

	default:
		return "", fmt.Errorf("backend: unsupported camera brand %q (supported: %s)",
			d.Brand, strings.Join(SupportedBrands(), ", "))
	}
}

// MJPEGURL builds the HTTP MJPEG preview URL used by the fallback backend.
func MJPEGURL(d Descriptor) (string, error) {
	if d.SourceURL != "" && strings.HasPrefix(d.SourceURL, "http") {
		return d.SourceURL, nil
	}

	port := d.Port
	if port == 0 || port == defaultRTSPPort {
		port = defaultHTTPPort
	}
	channel := d.Channel
	if channel == 0 {
		channel = 1
	}

	var path string
	switch strings.ToUpper(d.Brand) {
	case "HIKVISION", "EZVIZ":
		path = fmt.Sprintf("/Streaming/channels/%d02/httpPreview", channel)
	case "INTELBRAS":
		path = fmt.Sprintf("/cgi-bin/mjpg/video.cgi?channel=%d&subtype=1", channel)
	default:
		return "", fmt.Errorf("backend: no MJPEG path known for brand %q", d.Brand)
	}

	return fmt.Sprintf("http://%s:%d%s", d.Host, port, path), nil
}
