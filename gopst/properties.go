package gopst

import (
	"time"

	"github.com/dhcgn/pst-viewer/native"
)

// getter reads one property off a go-pst value. Item types other than mail
// (contacts, appointments) lack most accessors and report ErrNoProperty.
type getter func(v any) (any, error)

func getterOf[T, V any](read func(T) V) getter {
	return func(v any) (any, error) {
		if t, ok := v.(T); ok {
			return read(t), nil
		}
		return nil, native.ErrNoProperty
	}
}

// timeGetterOf reads a PT_SYSTIME property. go-pst decodes those into
// Unix nanoseconds; zero means the property is not set.
func timeGetterOf[T any](read func(T) int64) getter {
	return func(v any) (any, error) {
		t, ok := v.(T)
		if !ok {
			return nil, native.ErrNoProperty
		}
		n := read(t)
		if n <= 0 {
			return nil, native.ErrNoProperty
		}
		return time.Unix(0, n).UTC(), nil
	}
}

type (
	subjectGetter      interface{ GetSubject() string }
	senderNameGetter   interface{ GetSenderName() string }
	senderEmailGetter  interface{ GetSenderEmailAddress() string }
	representingGetter interface{ GetSentRepresentingName() string }
	displayToGetter    interface{ GetDisplayTo() string }
	displayCcGetter    interface{ GetDisplayCc() string }
	bodyGetter         interface{ GetBody() string }
	bodyHTMLGetter     interface{ GetBodyHtml() string }
	submitGetter       interface{ GetClientSubmitTime() int64 }
	deliveryGetter     interface{ GetMessageDeliveryTime() int64 }

	longFilenameGetter interface{ GetAttachLongFilename() string }
	filenameGetter     interface{ GetAttachFilename() string }
	mimeTagGetter      interface{ GetAttachMimeTag() string }
	attachSizeGetter   interface{ GetAttachSize() int32 }
	attachMethodGetter interface{ GetAttachMethod() int32 }
)

// PST messages carry no Date header, so native.PropDate is left unmapped.
// The delivery time is exposed under its own name.
var messageGetters = map[string]getter{
	native.PropSubject:              getterOf(subjectGetter.GetSubject),
	native.PropSenderName:           getterOf(senderNameGetter.GetSenderName),
	native.PropSenderEmail:          getterOf(senderEmailGetter.GetSenderEmailAddress),
	native.PropSentRepresentingName: getterOf(representingGetter.GetSentRepresentingName),
	native.PropDisplayTo:            getterOf(displayToGetter.GetDisplayTo),
	native.PropDisplayCc:            getterOf(displayCcGetter.GetDisplayCc),
	native.PropPlainTextBody:        getterOf(bodyGetter.GetBody),
	native.PropHTMLBody:             getterOf(bodyHTMLGetter.GetBodyHtml),
	native.PropClientSubmitTime:     timeGetterOf(submitGetter.GetClientSubmitTime),
	native.PropDeliveryTime:         timeGetterOf(deliveryGetter.GetMessageDeliveryTime),
}

var attachmentGetters = map[string]getter{
	native.PropLongFilename: getterOf(longFilenameGetter.GetAttachLongFilename),
	native.PropFilename:     getterOf(filenameGetter.GetAttachFilename),
	native.PropMIMETag:      getterOf(mimeTagGetter.GetAttachMimeTag),
	native.PropSize:         getterOf(attachSizeGetter.GetAttachSize),
	native.PropAttachMethod: getterOf(attachMethodGetter.GetAttachMethod),
}
