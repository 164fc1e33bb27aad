package telephony

import (
	"bytes"
	"encoding/xml"
)

// Minimal Twilio Markup Language builder. Only the verbs the conversation
// flow needs at the adapter boundary.

type twimlResponse struct {
	XMLName xml.Name `xml:"Response"`
	Verbs   []any    `xml:",any"`
}

type twimlSay struct {
	XMLName xml.Name `xml:"Say"`
	Voice   string   `xml:"voice,attr,omitempty"`
	Text    string   `xml:",chardata"`
}

type twimlGather struct {
	XMLName       xml.Name `xml:"Gather"`
	Input         string   `xml:"input,attr"`
	Action        string   `xml:"action,attr"`
	Method        string   `xml:"method,attr"`
	SpeechTimeout string   `xml:"speechTimeout,attr,omitempty"`
	Timeout       int      `xml:"timeout,attr,omitempty"`
	Say           *twimlSay
}

type twimlHangup struct {
	XMLName xml.Name `xml:"Hangup"`
}

type twimlRedirect struct {
	XMLName xml.Name `xml:"Redirect"`
	Method  string   `xml:"method,attr"`
	URL     string   `xml:",chardata"`
}

// Response accumulates verbs and renders them as a TwiML document.
type Response struct {
	verbs []any
}

func NewResponse() *Response { return &Response{} }

func (r *Response) Say(text string) *Response {
	r.verbs = append(r.verbs, twimlSay{Text: text})
	return r
}

// GatherSpeech prompts with text and collects a speech result, posting it to
// action.
func (r *Response) GatherSpeech(text, action string) *Response {
	r.verbs = append(r.verbs, twimlGather{
		Input:         "speech",
		Action:        action,
		Method:        "POST",
		SpeechTimeout: "auto",
		Timeout:       6,
		Say:           &twimlSay{Text: text},
	})
	return r
}

func (r *Response) Hangup() *Response {
	r.verbs = append(r.verbs, twimlHangup{})
	return r
}

// Redirect sends the call back to url when a gather collects nothing.
func (r *Response) Redirect(url string) *Response {
	r.verbs = append(r.verbs, twimlRedirect{Method: "POST", URL: url})
	return r
}

func (r *Response) Render() (string, error) {
	doc := twimlResponse{Verbs: r.verbs}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return "", err
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}
