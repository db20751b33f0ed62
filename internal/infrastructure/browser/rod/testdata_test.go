package rod

// Test pages served by httptest servers.
const (
	TrackingHTML = `<!DOCTYPE html>
<html>
<head><title>Landing</title></head>
<body>
	<h1>Landing</h1>
	<script>
		fetch('/collect?v=1&t=pageview&tid=UA-1');
		fetch('/collect', {
			method: 'POST',
			headers: {'Content-Type': 'application/json'},
			body: JSON.stringify({event: 'lead', value: 42})
		});
	</script>
</body>
</html>`

	QuietHTML = `<!DOCTYPE html>
<html>
<head><title>Quiet</title></head>
<body><p>nothing fires here</p></body>
</html>`

	FormHTML = `<!DOCTYPE html>
<html>
<body>
	<input id="email" type="text" />
	<select id="plan">
		<option value="f">Free</option>
		<option value="p">Pro</option>
	</select>
	<button id="submit" onclick="fetch('/collect?ev=submit&email=' + encodeURIComponent(document.getElementById('email').value))">Send</button>
</body>
</html>`

	ScrollableHTML = `<!DOCTYPE html>
<html>
<body style="height: 5000px; margin: 0;">
	<h1 id="top">Top of Page</h1>
</body>
</html>`

	FrameHostHTML = `<!DOCTYPE html>
<html>
<body>
	<iframe id="inner" src="/frame"></iframe>
</body>
</html>`

	FrameHTML = `<!DOCTYPE html>
<html>
<body><button id="inside">Inside</button></body>
</html>`
)
