package httpapi

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/John-Robertt/v2clash/internal/convert"
	"github.com/John-Robertt/v2clash/internal/model"
	"github.com/John-Robertt/v2clash/internal/userinfo"
)

type clashRequest struct {
	Email    string
	FileName string
}

func parseClashGET(r *http.Request) (clashRequest, error) {
	q := r.URL.Query()
	for key := range q {
		switch key {
		case "email", "fileName":
		default:
			return clashRequest{}, requestError("INVALID_ARGUMENT", fmt.Sprintf("不支持的 query 参数：%s", key), "supported: email, fileName")
		}
	}

	email, err := singleQuery(q, "email", false)
	if err != nil {
		return clashRequest{}, err
	}
	email = strings.TrimSpace(email)
	if strings.ContainsAny(email, "\r\n\x00") {
		return clashRequest{}, requestError("INVALID_ARGUMENT", "email 含有非法控制字符", "")
	}

	fileName, err := singleQuery(q, "fileName", false)
	if err != nil {
		return clashRequest{}, err
	}
	fileName, err = outputFileName(fileName)
	if err != nil {
		return clashRequest{}, err
	}
	return clashRequest{Email: email, FileName: fileName}, nil
}

func singleQuery(q url.Values, key string, required bool) (string, error) {
	values, ok := q[key]
	if !ok || len(values) == 0 {
		if required {
			return "", requestError("INVALID_ARGUMENT", fmt.Sprintf("缺少 %s 参数", key), "")
		}
		return "", nil
	}
	if len(values) != 1 {
		return "", requestError("INVALID_ARGUMENT", fmt.Sprintf("%s 参数只能出现一次", key), "")
	}
	return values[0], nil
}

func (s *server) handleClash(w http.ResponseWriter, r *http.Request) {
	log := requestLogger(r, s.opt.Logger)
	if s.opt.Converter == nil {
		s.writeError(w, http.StatusServiceUnavailable, model.AppError{
			Code:    "NOT_CONFIGURED",
			Message: "转换器未配置",
			Stage:   "validate_request",
		})
		return
	}

	req, err := parseClashGET(r)
	if err != nil {
		s.writeErrorFromErr(w, err)
		return
	}

	// A per-client result must not replace the shared artifact.
	out, err := s.opt.Converter.ConvertRequest(r.Context(), convert.Request{
		Email:        req.Email,
		SkipArtifact: req.Email != "",
	})
	if err != nil {
		log.WithError(err).Warn("conversion failed")
		s.writeErrorFromErr(w, err)
		return
	}
	if out.Empty {
		s.writeError(w, http.StatusNotFound, model.AppError{
			Code:    "NO_VALID_PROXIES",
			Message: "没有任何链接解码成功",
			Stage:   "transcode",
			Hint:    fmt.Sprintf("skipped=%d", len(out.Skipped)),
		})
		return
	}

	// Add both filename and filename* for better UTF-8 compatibility.
	w.Header().Set("Content-Disposition", contentDispositionAttachment(req.FileName))
	w.Header().Set(userinfo.HeaderName, userinfo.Format(out.UserInfo))
	w.Header().Set("Cache-Control", "no-store")
	WriteYAML(w, http.StatusOK, out.YAML)

	log.WithFields(logrus.Fields{
		"proxies": len(out.Proxies),
		"skipped": len(out.Skipped),
	}).Debug("clash config served")
}
