package errors

import "fmt"

type Underflow struct {
	MessageName string
	MsgSize     int
	MinimumSize int
}

func (e *Underflow) Error() string {
	return fmt.Sprintf("Message parsing underflowed (type=%s), provided %d bytes, needed at least %d", e.MessageName, e.MsgSize, e.MinimumSize)
}

type InvalidEnumValue struct {
	EnumName string
	IntValue uint8
}

func (e *InvalidEnumValue) Error() string {
	return fmt.Sprintf("Invalid enum value=%d (enum: %s)", e.IntValue, e.EnumName)
}

type InvalidHeaderVersion struct {
	ExpectedMagicNumber uint32
	ActualMagicNumber   uint32
	ExpectedVersion     uint8
	ActualVersion       uint8
}

func (e *InvalidHeaderVersion) Error() string {
	return fmt.Sprintf("Invalid header: expected MagicNumber=%d, got MagicNumber=%d. Expected version %d, got %d", e.ExpectedMagicNumber, e.ActualMagicNumber, e.ExpectedVersion, e.ActualVersion)
}

type MissingFieldError struct {
	MessageName string
	FieldName   string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("Missing field %s in message type %s", e.FieldName, e.MessageName)
}

// TrailingBytes is returned when a payload decodes cleanly but has bytes left over.
type TrailingBytes struct {
	MessageName string
	Extra       int
}

func (e *TrailingBytes) Error() string {
	return fmt.Sprintf("Message %s has %d unexpected trailing bytes", e.MessageName, e.Extra)
}

type InvalidString struct {
	MessageName string
	FieldName   string
}

func (e *InvalidString) Error() string {
	return fmt.Sprintf("Field %s in message type %s is not valid UTF-8", e.FieldName, e.MessageName)
}

type StringTooLong struct {
	MessageName string
	Length      int
	MaxLength   int
}

func (e *StringTooLong) Error() string {
	return fmt.Sprintf("String in message type %s is %d bytes, maximum is %d", e.MessageName, e.Length, e.MaxLength)
}
