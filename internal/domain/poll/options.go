package poll

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
)

// OptionList is an ordered list of option labels persisted as a JSON column.
type OptionList []string

func (o OptionList) Value() (driver.Value, error) {
	if o == nil {
		return "[]", nil
	}
	data, err := json.Marshal([]string(o))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (o *OptionList) Scan(src interface{}) error {
	if src == nil {
		*o = nil
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("option list: cannot scan %T", src)
	}
	if len(data) == 0 {
		*o = nil
		return nil
	}
	var labels []string
	if err := json.Unmarshal(data, &labels); err != nil {
		return errors.New("option list: malformed JSON")
	}
	*o = labels
	return nil
}

func (OptionList) GormDataType() string {
	return "jsonb"
}
