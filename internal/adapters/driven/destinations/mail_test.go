package destinations

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docrelay/docrelay/internal/core/domain"
	"github.com/docrelay/docrelay/internal/core/ports/driven"
)

// TestMailDeliver_RequiresConfiguration tests config validation before
// any SMTP traffic.
func TestMailDeliver_RequiresConfiguration(t *testing.T) {
	adapter := NewMailAdapter()

	_, err := adapter.Deliver(context.Background(), driven.DeliveryRequest{
		Target: driven.Target{Destination: domain.DestinationConfig{
			Name:     "forward",
			Provider: domain.ProviderMail,
		}},
		Filename: "invoice.pdf",
		Content:  bytes.NewReader([]byte("x")),
	})
	require.Error(t, err)
	assert.Equal(t, domain.ErrClassValidation, domain.Classify(err))

	_, err = adapter.Deliver(context.Background(), driven.DeliveryRequest{
		Target: driven.Target{Destination: domain.DestinationConfig{
			Name:     "forward",
			Provider: domain.ProviderMail,
			Settings: map[string]string{
				SettingMailHost: "smtp.example.org",
				SettingMailPort: "not a port",
				SettingMailTo:   "inbox@example.org",
			},
		}},
		Filename: "invoice.pdf",
		Content:  bytes.NewReader([]byte("x")),
	})
	require.Error(t, err)
	assert.Equal(t, domain.ErrClassValidation, domain.Classify(err))
}

// TestMailSubjectAndBody tests metadata rendering in the message.
func TestMailSubjectAndBody(t *testing.T) {
	doc := domain.Document{
		OriginalName: "scan_0042.tiff",
		PageCount:    3,
	}
	assert.Equal(t, "scan_0042.pdf", mailSubject(doc))

	doc.Metadata = &domain.ExtractedMetadata{Title: "Rental Contract", Classification: "contract"}
	assert.Equal(t, "Rental Contract", mailSubject(doc))

	body := mailBody(doc)
	assert.Contains(t, body, "scan_0042.tiff")
	assert.Contains(t, body, "contract")
	assert.Contains(t, body, "Pages: 3")
}

// TestSplitAddresses tests recipient list parsing.
func TestSplitAddresses(t *testing.T) {
	assert.Equal(t, []string{"a@x.org", "b@x.org"}, splitAddresses("a@x.org, b@x.org"))
	assert.Equal(t, []string{"a@x.org"}, splitAddresses("a@x.org,"))
	assert.Nil(t, splitAddresses(""))
}

// TestClassifyMailErr tests SMTP reply code mapping.
func TestClassifyMailErr(t *testing.T) {
	err535 := classifyMailErr(errors.New("535 5.7.8 authentication credentials invalid"))
	assert.Equal(t, domain.ErrClassAuthExpired, domain.Classify(err535))

	err451 := classifyMailErr(errors.New("451 4.3.0 temporary local problem"))
	assert.Equal(t, domain.ErrClassTransient, domain.Classify(err451))

	err550 := classifyMailErr(errors.New("550 5.1.1 user unknown"))
	assert.Equal(t, domain.ErrClassPermanent, domain.Classify(err550))

	other := classifyMailErr(errors.New("message too strange"))
	assert.Equal(t, domain.ErrClassInternal, domain.Classify(other))
}
