package telephony

import (
	"context"
	"fmt"
	"net/url"

	"github.com/twilio/twilio-go"
	twilioclient "github.com/twilio/twilio-go/client"
	api "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioDialer places outbound calls through the Twilio voice API.
type TwilioDialer struct {
	client    *twilio.RestClient
	validator twilioclient.RequestValidator
	from      string
}

// NewTwilioDialer builds a dialer from account credentials and the caller ID
// number calls are placed from.
func NewTwilioDialer(accountSID, authToken, from string) *TwilioDialer {
	return &TwilioDialer{
		client: twilio.NewRestClientWithParams(twilio.ClientParams{
			Username: accountSID,
			Password: authToken,
		}),
		validator: twilioclient.NewRequestValidator(authToken),
		from:      from,
	}
}

func (d *TwilioDialer) Place(ctx context.Context, req PlaceRequest) (Placement, error) {
	params := &api.CreateCallParams{}
	params.SetTo(req.To)
	from := req.From
	if from == "" {
		from = d.from
	}
	params.SetFrom(from)
	params.SetUrl(req.VoiceURL)
	params.SetStatusCallback(req.StatusURL)
	params.SetStatusCallbackEvent([]string{"initiated", "ringing", "answered", "completed"})
	params.SetStatusCallbackMethod("POST")
	params.SetMachineDetection("Enable")

	if err := ctx.Err(); err != nil {
		return Placement{}, err
	}
	resp, err := d.client.Api.CreateCall(params)
	if err != nil {
		return Placement{}, fmt.Errorf("telephony: twilio create call: %w", err)
	}
	if resp.Sid == nil || *resp.Sid == "" {
		return Placement{}, fmt.Errorf("telephony: twilio returned call without sid")
	}
	return Placement{ProviderRef: *resp.Sid}, nil
}

// ValidateSignature checks the X-Twilio-Signature header for a webhook hit on
// the given absolute URL with the posted form values.
func (d *TwilioDialer) ValidateSignature(fullURL string, form url.Values, signature string) bool {
	params := make(map[string]string, len(form))
	for k := range form {
		params[k] = form.Get(k)
	}
	return d.validator.Validate(fullURL, params, signature)
}
